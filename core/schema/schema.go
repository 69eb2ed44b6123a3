/*Package schema validates record payloads against the declared field schema of
their resource. The JSON schemas are generated from the resource configuration
at startup; records stay open maps, so undeclared fields always pass.
*/
package schema

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mockfold/mockfold/core"
	"github.com/mockfold/mockfold/core/record"
	"github.com/mockfold/mockfold/core/resource"
)

// Validator validates records against the generated schema of their resource
type Validator struct {
	schemaValidators map[string]*gojsonschema.Schema
}

// NewValidator generates and compiles one JSON schema per resource in the set
func NewValidator(set *resource.Set) (*Validator, error) {
	validator := Validator{schemaValidators: make(map[string]*gojsonschema.Schema)}
	for _, name := range set.Names() {
		cfg, _ := set.Lookup(name)
		loader := gojsonschema.NewGoLoader(schemaForResource(cfg))
		schema, err := gojsonschema.NewSchema(loader)
		if err != nil {
			return nil, fmt.Errorf("cannot compile schema for resource %s: %w", name, err)
		}
		validator.schemaValidators[name] = schema
	}
	return &validator, nil
}

// HasSchema returns true if the resource is known
func (v *Validator) HasSchema(resourceName string) bool {
	_, ok := v.schemaValidators[resourceName]
	return ok
}

// ValidateRecord validates the record against its resource schema. A nil error
// means the record is valid. Schema violations are validation errors.
func (v *Validator) ValidateRecord(resourceName string, rec record.Record) error {
	schema, ok := v.schemaValidators[resourceName]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrResourceNotFound, resourceName)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(map[string]interface{}(rec)))
	if err != nil {
		return fmt.Errorf("cannot validate against schema %s: %w", resourceName, err)
	}

	if !result.Valid() {
		message := fmt.Sprintf("record is not a valid %s:", resourceName)
		for _, e := range result.Errors() {
			message += fmt.Sprintf(" %s;", e)
		}
		return fmt.Errorf("%w: %s", core.ErrValidation, message)
	}
	return nil
}

// schemaForResource maps the declared fields onto a JSON schema. The primary
// key is never required, the store assigns it on create. Unknown or absent
// field types impose no constraint.
func schemaForResource(cfg *resource.Config) map[string]interface{} {
	properties := map[string]interface{}{}
	var required []string

	for _, field := range cfg.Fields {
		property := map[string]interface{}{}
		switch field.Type {
		case "string", "number", "integer", "boolean", "object", "array":
			property["type"] = []string{field.Type, "null"}
		case "uuid":
			property["type"] = []string{"string", "null"}
		}
		properties[field.Name] = property

		if field.Required && field.Name != cfg.KeyField() {
			required = append(required, field.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": true,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
