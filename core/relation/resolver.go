/*Package relation resolves related records across the four relationship kinds
and recursively inlines them into record sets along dotted expand paths.

Unlike single-record reads, expansion fails closed: a path naming an undeclared
relationship, or one that is deeper than the maximum, is an error. Such a
request indicates a caller or configuration bug worth surfacing.
*/
package relation

import (
	"context"
	"fmt"
	"strings"

	"github.com/mockfold/mockfold/core"
	"github.com/mockfold/mockfold/core/logger"
	"github.com/mockfold/mockfold/core/query"
	"github.com/mockfold/mockfold/core/record"
	"github.com/mockfold/mockfold/core/resource"
)

// DefaultMaxDepth is the maximum number of segments in an expand path
const DefaultMaxDepth = 3

// Reader is the store access the resolver needs: full collections in store order
type Reader interface {
	Collection(ctx context.Context, resourceName string) ([]record.Record, error)
}

// Resolver resolves and expands relationships against a record store
type Resolver struct {
	resources *resource.Set
	reader    Reader
	maxDepth  int
}

// New creates a resolver over the given configuration set and store
func New(set *resource.Set, reader Reader) *Resolver {
	return &Resolver{resources: set, reader: reader, maxDepth: DefaultMaxDepth}
}

// FindRelated returns the records related to the record with the given id via
// the named relationship, with the query options applied to the related set.
// Pagination only happens when the options ask for it.
func (r *Resolver) FindRelated(ctx context.Context, resourceName string, id interface{}, relationshipName string, opt query.Options) ([]record.Record, error) {
	cfg, ok := r.resources.Lookup(resourceName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrResourceNotFound, resourceName)
	}
	rel, ok := cfg.Relationship(relationshipName)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", core.ErrRelationshipNotFound, resourceName, relationshipName)
	}

	source, err := r.findSource(ctx, cfg, id)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return []record.Record{}, nil
	}

	related, err := r.resolve(ctx, cfg, rel, source)
	if err != nil {
		return nil, err
	}
	return query.Apply(related, opt, 0)
}

// Expand resolves the dotted relationship paths and inlines the related
// records into the passed records, under the relationship names. The records
// are modified in place. Paths are applied in order over the same record set.
func (r *Resolver) Expand(ctx context.Context, resourceName string, records []record.Record, paths []string) error {
	cfg, ok := r.resources.Lookup(resourceName)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrResourceNotFound, resourceName)
	}
	for _, path := range paths {
		segments := strings.Split(path, ".")
		if len(segments) > r.maxDepth {
			return fmt.Errorf("%w: expand path %s exceeds maximum depth %d", core.ErrRelationshipNotFound, path, r.maxDepth)
		}
		if err := r.expandPath(ctx, cfg, records, segments); err != nil {
			return err
		}
		logger.FromContext(ctx).Debugln("expanded", resourceName, path)
	}
	return nil
}

// expandPath expands one segment on the record set and recurses into the
// records it attached
func (r *Resolver) expandPath(ctx context.Context, cfg *resource.Config, records []record.Record, segments []string) error {
	name := segments[0]
	rel, ok := cfg.Relationship(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", core.ErrRelationshipNotFound, cfg.Name, name)
	}

	var attached []record.Record
	for _, rec := range records {
		// an earlier expand path may already have attached this relationship;
		// reuse it so that sibling paths merge instead of overwriting
		if existing, ok := rec[name].(record.Record); ok {
			attached = append(attached, existing)
			continue
		}
		if existing, ok := rec[name].([]record.Record); ok {
			attached = append(attached, existing...)
			continue
		}
		related, err := r.resolve(ctx, cfg, rel, rec)
		if err != nil {
			return err
		}
		if rel.Type.IsToMany() {
			rec[name] = related
			attached = append(attached, related...)
		} else if len(related) > 0 {
			rec[name] = related[0]
			attached = append(attached, related[0])
		} else {
			rec[name] = nil
		}
	}

	if len(segments) > 1 {
		target, ok := r.resources.Lookup(rel.Resource)
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrResourceNotFound, rel.Resource)
		}
		// the attached records are the same maps that now sit inside the
		// sources, so expanding them writes into the nested slots
		return r.expandPath(ctx, target, attached, segments[1:])
	}
	return nil
}

// resolve returns the records related to one source record, in store order
func (r *Resolver) resolve(ctx context.Context, cfg *resource.Config, rel resource.Relationship, source record.Record) ([]record.Record, error) {
	switch rel.Type {
	case resource.HasOne, resource.HasMany:
		sourceKey := source[cfg.KeyField()]
		if sourceKey == nil {
			return []record.Record{}, nil
		}
		targets, err := r.reader.Collection(ctx, rel.Resource)
		if err != nil {
			return nil, err
		}
		matches := []record.Record{}
		for _, target := range targets {
			if record.SameIdentifier(target[rel.ForeignKey], sourceKey) {
				matches = append(matches, target)
				if rel.Type == resource.HasOne {
					break
				}
			}
		}
		return matches, nil

	case resource.BelongsTo:
		linkValue, ok := source[rel.ForeignKey]
		if !ok || linkValue == nil {
			return []record.Record{}, nil
		}
		targets, err := r.reader.Collection(ctx, rel.Resource)
		if err != nil {
			return nil, err
		}
		targetKey := r.resources.TargetKey(rel)
		for _, target := range targets {
			if record.SameIdentifier(target[targetKey], linkValue) {
				return []record.Record{target}, nil
			}
		}
		return []record.Record{}, nil

	case resource.ManyToMany:
		sourceKey := source[cfg.KeyField()]
		if sourceKey == nil {
			return []record.Record{}, nil
		}
		joins, err := r.reader.Collection(ctx, rel.Through)
		if err != nil {
			return nil, err
		}
		targetKey := r.resources.TargetKey(rel)
		var linkValues []interface{}
		for _, join := range joins {
			if record.SameIdentifier(join[rel.ForeignKey], sourceKey) && join[targetKey] != nil {
				linkValues = append(linkValues, join[targetKey])
			}
		}
		targets, err := r.reader.Collection(ctx, rel.Resource)
		if err != nil {
			return nil, err
		}
		target, ok := r.resources.Lookup(rel.Resource)
		if !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrResourceNotFound, rel.Resource)
		}
		matches := []record.Record{}
		for _, candidate := range targets {
			for _, linkValue := range linkValues {
				if record.SameIdentifier(candidate[target.KeyField()], linkValue) {
					matches = append(matches, candidate)
					break
				}
			}
		}
		return matches, nil

	default:
		return nil, fmt.Errorf("%w: %s.%s has unsupported type %s", core.ErrRelationshipNotFound, cfg.Name, rel.Name, rel.Type)
	}
}

// findSource locates the source record by primary key
func (r *Resolver) findSource(ctx context.Context, cfg *resource.Config, id interface{}) (record.Record, error) {
	records, err := r.reader.Collection(ctx, cfg.Name)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if record.SameIdentifier(rec[cfg.KeyField()], id) {
			return rec, nil
		}
	}
	return nil, nil
}
