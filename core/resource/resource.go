/*Package resource holds the declarative resource configuration: fields,
relationships, access rules and ownership. The configuration is created once at
startup from the parsed specification and is immutable thereafter.
*/
package resource

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/mockfold/mockfold/core"
)

// RelationType is the closed set of supported relationship kinds
type RelationType string

// all supported relationship kinds
const (
	BelongsTo  RelationType = "belongsTo"
	HasOne     RelationType = "hasOne"
	HasMany    RelationType = "hasMany"
	ManyToMany RelationType = "manyToMany"
)

// UnmarshalJSON is a custom JSON unmarshaller
func (rt *RelationType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*rt = RelationType(s)
	switch *rt {
	case BelongsTo, HasOne, HasMany, ManyToMany:
		return nil
	default:
		return fmt.Errorf("%s is not a valid RelationType", s)
	}
}

// IsToMany returns true for relationship kinds that resolve to a list of records
func (rt RelationType) IsToMany() bool {
	return rt == HasMany || rt == ManyToMany
}

// Field describes one declared field of a resource. The schema is used for
// validation and defaults only; records remain open maps.
type Field struct {
	Name     string      `json:"name"`
	Type     string      `json:"type,omitempty"`
	Required bool        `json:"required,omitempty"`
	Default  interface{} `json:"defaultValue,omitempty"`
}

// Relationship links a resource to a target resource. ForeignKey names the
// linking field; where it lives depends on the kind: on the target for hasOne
// and hasMany, on the source for belongsTo, on the join collection for
// manyToMany. Through names the join collection and is required exactly for
// manyToMany.
type Relationship struct {
	Name       string       `json:"name"`
	Type       RelationType `json:"type"`
	Resource   string       `json:"resource"`
	ForeignKey string       `json:"foreignKey"`
	TargetKey  string       `json:"targetKey,omitempty"`
	Through    string       `json:"through,omitempty"`
}

// Config is the configuration of a single resource
type Config struct {
	Name          string              `json:"name"`
	PrimaryKey    string              `json:"primaryKey,omitempty"`
	Fields        []Field             `json:"fields,omitempty"`
	Relationships []Relationship      `json:"relationships,omitempty"`
	Access        map[string][]string `json:"access,omitempty"`
	OwnedBy       string              `json:"ownedBy,omitempty"`
}

// KeyField returns the name of the primary key field, "id" unless configured otherwise
func (c *Config) KeyField() string {
	if c.PrimaryKey == "" {
		return "id"
	}
	return c.PrimaryKey
}

// KeyIsUUID returns true if the primary key field is declared with type "uuid".
// UUID keys are generated randomly, numeric keys count up.
func (c *Config) KeyIsUUID() bool {
	field, ok := c.Field(c.KeyField())
	return ok && field.Type == "uuid"
}

// Field returns the declared field with the given name
func (c *Config) Field(name string) (Field, bool) {
	for _, field := range c.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

// Relationship returns the declared relationship with the given name
func (c *Config) Relationship(name string) (Relationship, bool) {
	for _, rel := range c.Relationships {
		if rel.Name == name {
			return rel, true
		}
	}
	return Relationship{}, false
}

// RequiredRoles returns the roles required for the action. The second return
// value is false when the action carries no access entry at all, which means
// the action is unrestricted.
func (c *Config) RequiredRoles(action core.Action) ([]string, bool) {
	if c.Access == nil {
		return nil, false
	}
	roles, ok := c.Access[string(action)]
	return roles, ok
}

// Set is the validated, immutable set of resource configurations for one run
type Set struct {
	configs map[string]*Config
	names   []string
}

// NewSet validates the passed configurations and builds the lookup set.
// Every relationship target and every manyToMany join collection must resolve
// to a declared resource, and relationship names must be unique per resource.
func NewSet(configs []Config) (*Set, error) {
	set := &Set{configs: make(map[string]*Config, len(configs))}
	for i := range configs {
		c := configs[i]
		if c.Name == "" {
			return nil, fmt.Errorf("resource #%d has no name", i)
		}
		if _, ok := set.configs[c.Name]; ok {
			return nil, fmt.Errorf("duplicate resource %s", c.Name)
		}
		set.configs[c.Name] = &c
		set.names = append(set.names, c.Name)
	}

	for _, name := range set.names {
		c := set.configs[name]
		seen := map[string]bool{}
		for _, rel := range c.Relationships {
			if rel.Name == "" {
				return nil, fmt.Errorf("resource %s has a relationship without a name", name)
			}
			if seen[rel.Name] {
				return nil, fmt.Errorf("resource %s has duplicate relationship %s", name, rel.Name)
			}
			seen[rel.Name] = true
			if rel.ForeignKey == "" {
				return nil, fmt.Errorf("relationship %s.%s has no foreign key", name, rel.Name)
			}
			if _, ok := set.configs[rel.Resource]; !ok {
				return nil, fmt.Errorf("relationship %s.%s references unknown resource %s", name, rel.Name, rel.Resource)
			}
			if rel.Type == ManyToMany {
				if rel.Through == "" {
					return nil, fmt.Errorf("relationship %s.%s is manyToMany but has no join collection", name, rel.Name)
				}
				if _, ok := set.configs[rel.Through]; !ok {
					return nil, fmt.Errorf("relationship %s.%s references unknown join collection %s", name, rel.Name, rel.Through)
				}
			}
		}
	}
	return set, nil
}

// NewSetFromJSON parses a JSON array of resource configurations and validates it
func NewSetFromJSON(config string) (*Set, error) {
	var configs []Config
	if err := json.Unmarshal([]byte(config), &configs); err != nil {
		return nil, fmt.Errorf("parse error in resource configuration: %w", err)
	}
	return NewSet(configs)
}

// Lookup returns the configuration for the named resource
func (s *Set) Lookup(name string) (*Config, bool) {
	c, ok := s.configs[name]
	return c, ok
}

// Names returns all resource names in declaration order
func (s *Set) Names() []string {
	return s.names
}

// TargetKey returns the effective target key of a relationship: the configured
// one, or the target resource's primary key as a default.
func (s *Set) TargetKey(rel Relationship) string {
	if rel.TargetKey != "" {
		return rel.TargetKey
	}
	if target, ok := s.configs[rel.Resource]; ok {
		return target.KeyField()
	}
	return "id"
}
