/*Package store implements CRUD over named record collections, independent of
any transport concerns. The store owns record lifetime and ID generation;
callers only ever see deep copies of stored records.

After every successful mutation the full content is flushed to the configured
persistence driver. Flush failures are logged and do not fail the mutation;
in-process readers always see the latest in-memory state regardless.
*/
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/joeshaw/envdecode"

	"github.com/mockfold/mockfold/core"
	"github.com/mockfold/mockfold/core/logger"
	"github.com/mockfold/mockfold/core/persistence"
	"github.com/mockfold/mockfold/core/query"
	"github.com/mockfold/mockfold/core/record"
	"github.com/mockfold/mockfold/core/resource"
	"github.com/mockfold/mockfold/core/schema"
)

// CascadeRule names a collection to sweep when a record is deleted: every
// record whose ForeignKey equals the deleted id is removed as well.
type CascadeRule struct {
	Resource   string `json:"resource"`
	ForeignKey string `json:"foreignKey"`
}

// Settings holds the tunables of the store
type Settings struct {
	DefaultPerPage int `env:"MOCKFOLD_DEFAULT_PER_PAGE,default=20" description:"page size used when a list request does not carry one"`
	MaxPerPage     int `env:"MOCKFOLD_MAX_PER_PAGE,default=100" description:"upper bound for requested page sizes"`
}

// DefaultSettings returns the built-in defaults
func DefaultSettings() Settings {
	return Settings{DefaultPerPage: 20, MaxPerPage: 100}
}

// SettingsFromEnv decodes the settings from the environment
func SettingsFromEnv() (Settings, error) {
	var settings Settings
	if err := envdecode.Decode(&settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Store is the record store for all configured resources
type Store struct {
	mutex     sync.RWMutex
	resources *resource.Set
	settings  Settings
	driver    persistence.Driver
	validator *schema.Validator
	data      map[string][]record.Record
}

// Builder is a builder helper for the Store
type Builder struct {
	// Resources is the validated resource configuration set. This is mandatory.
	Resources *resource.Set
	// Settings are the store tunables. Optional, defaults apply.
	Settings *Settings
	// Driver is the persistence backend. Optional; without it the store is
	// purely in-memory. If the driver holds previously persisted state, the
	// store starts from it.
	Driver persistence.Driver
	// Validator validates payloads against the declared field schemas on
	// create and update. This is optional.
	Validator *schema.Validator
}

// New realizes the store. It restores persisted state from the driver when one
// is configured.
func New(bb *Builder) *Store {
	if bb.Resources == nil {
		panic("resource configuration is missing")
	}
	settings := DefaultSettings()
	if bb.Settings != nil {
		settings = *bb.Settings
	}
	s := &Store{
		resources: bb.Resources,
		settings:  settings,
		driver:    bb.Driver,
		validator: bb.Validator,
		data:      map[string][]record.Record{},
	}
	if bb.Driver != nil {
		data, err := bb.Driver.Load()
		if err != nil {
			panic(fmt.Sprintf("cannot load persisted state: %v", err))
		}
		if data != nil {
			s.data = data
		}
	}
	return s
}

// Get returns a copy of the record with the given id. Absence is reported with
// the boolean, not an error; only an undeclared resource name is an error.
func (s *Store) Get(ctx context.Context, resourceName string, id interface{}) (record.Record, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	cfg, ok := s.resources.Lookup(resourceName)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", core.ErrResourceNotFound, resourceName)
	}
	idx := findIndex(s.data[resourceName], cfg.KeyField(), id)
	if idx < 0 {
		return nil, false, nil
	}
	return s.data[resourceName][idx].Copy(), true, nil
}

// List returns the records of the resource with filter, sort, pagination and
// projection applied, in that order. The requested page size is clamped to the
// configured maximum.
func (s *Store) List(ctx context.Context, resourceName string, opt query.Options) ([]record.Record, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if _, ok := s.resources.Lookup(resourceName); !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrResourceNotFound, resourceName)
	}
	if s.settings.MaxPerPage > 0 && opt.PerPage > s.settings.MaxPerPage {
		opt.PerPage = s.settings.MaxPerPage
	}
	return query.Apply(record.CopyAll(s.data[resourceName]), opt, s.settings.DefaultPerPage)
}

// Collection returns a copy of the full collection in store order, without any
// query transforms. This is the read the relationship resolver works on.
func (s *Store) Collection(ctx context.Context, resourceName string) ([]record.Record, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if _, ok := s.resources.Lookup(resourceName); !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrResourceNotFound, resourceName)
	}
	return record.CopyAll(s.data[resourceName]), nil
}

// Create stores a new record and returns it with its primary key assigned.
// Numeric keys count up from the current maximum, UUID keys are generated
// randomly. A supplied key that collides with an existing record is a
// validation error.
func (s *Store) Create(ctx context.Context, resourceName string, data record.Record) (record.Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cfg, ok := s.resources.Lookup(resourceName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrResourceNotFound, resourceName)
	}

	rec := data.Copy()
	if rec == nil {
		rec = record.Record{}
	}
	applyDefaults(cfg, rec)
	if err := s.validate(resourceName, rec); err != nil {
		return nil, err
	}

	key := cfg.KeyField()
	if supplied, ok := rec[key]; ok && supplied != nil {
		if findIndex(s.data[resourceName], key, supplied) >= 0 {
			return nil, fmt.Errorf("%w: %s with %s %v already exists", core.ErrValidation, resourceName, key, supplied)
		}
	} else if cfg.KeyIsUUID() {
		rec[key] = uuid.NewString()
	} else {
		rec[key] = nextNumericKey(s.data[resourceName], key)
	}

	s.data[resourceName] = append(s.data[resourceName], rec)
	s.flush(ctx)

	logger.FromContext(ctx).Debugln("created", resourceName, rec[key])
	return rec.Copy(), nil
}

// Update modifies the record with the given id. With merge false the payload
// replaces all fields; with merge true it is shallow-merged over the existing
// record. Either way the primary key is pinned to the addressed record and the
// payload cannot change it. Absence of the id is reported with the boolean.
func (s *Store) Update(ctx context.Context, resourceName string, id interface{}, data record.Record, merge bool) (record.Record, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cfg, ok := s.resources.Lookup(resourceName)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", core.ErrResourceNotFound, resourceName)
	}
	key := cfg.KeyField()
	idx := findIndex(s.data[resourceName], key, id)
	if idx < 0 {
		return nil, false, nil
	}
	existing := s.data[resourceName][idx]

	var updated record.Record
	if merge {
		updated = existing.Copy()
		for field, value := range data.Copy() {
			updated[field] = value
		}
	} else {
		updated = data.Copy()
		if updated == nil {
			updated = record.Record{}
		}
	}
	updated[key] = existing[key]

	if err := s.validate(resourceName, updated); err != nil {
		return nil, false, err
	}

	s.data[resourceName][idx] = updated
	s.flush(ctx)

	logger.FromContext(ctx).Debugln("updated", resourceName, updated[key])
	return updated.Copy(), true, nil
}

// Delete removes the record with the given id. Cascade rules additionally
// remove every record of the listed collections whose foreign key equals the
// deleted id. All removals are collected first and applied in one step, so a
// bad cascade rule fails the whole call and leaves the store untouched.
func (s *Store) Delete(ctx context.Context, resourceName string, id interface{}, cascade []CascadeRule) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cfg, ok := s.resources.Lookup(resourceName)
	if !ok {
		return false, fmt.Errorf("%w: %s", core.ErrResourceNotFound, resourceName)
	}
	idx := findIndex(s.data[resourceName], cfg.KeyField(), id)
	if idx < 0 {
		return false, nil
	}
	deletedID := s.data[resourceName][idx][cfg.KeyField()]

	// collect all sweeps before touching anything
	swept := make(map[string][]record.Record, len(cascade))
	for _, rule := range cascade {
		if _, ok := s.resources.Lookup(rule.Resource); !ok {
			return false, fmt.Errorf("%w: cascade into %s", core.ErrResourceNotFound, rule.Resource)
		}
		var kept []record.Record
		for i, rec := range s.data[rule.Resource] {
			// a rule may sweep the deleted record's own collection; the
			// record itself must not survive the sweep
			if rule.Resource == resourceName && i == idx {
				continue
			}
			if !record.SameIdentifier(rec[rule.ForeignKey], deletedID) {
				kept = append(kept, rec)
			}
		}
		swept[rule.Resource] = kept
	}

	s.data[resourceName] = append(s.data[resourceName][:idx:idx], s.data[resourceName][idx+1:]...)
	for name, kept := range swept {
		s.data[name] = kept
	}
	s.flush(ctx)

	logger.FromContext(ctx).Debugln("deleted", resourceName, deletedID)
	return true, nil
}

// Reset atomically replaces the entire store content. Used for test and
// development resets and for restoring backups.
func (s *Store) Reset(ctx context.Context, data map[string][]record.Record) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.data = record.CopySet(data)
	if s.data == nil {
		s.data = map[string][]record.Record{}
	}
	s.flush(ctx)
	return nil
}

// Snapshot returns a deep copy of the entire store content
func (s *Store) Snapshot() map[string][]record.Record {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return record.CopySet(s.data)
}

// Backup stores a snapshot of the current state with the persistence driver
// and returns the snapshot id. An empty id asks the driver to generate one.
func (s *Store) Backup(ctx context.Context, id string) (string, error) {
	if s.driver == nil {
		return "", fmt.Errorf("no persistence driver configured")
	}
	// save and snapshot in one critical section, no concurrent flush can
	// land in between
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if err := s.driver.Save(record.CopySet(s.data)); err != nil {
		return "", err
	}
	return s.driver.Backup(id)
}

// Restore replaces the store content with a snapshot from the persistence driver
func (s *Store) Restore(ctx context.Context, id string) error {
	if s.driver == nil {
		return fmt.Errorf("no persistence driver configured")
	}
	data, err := s.driver.Restore(id)
	if err != nil {
		return err
	}
	return s.Reset(ctx, data)
}

// validate runs the payload through the schema validator, if one is configured
func (s *Store) validate(resourceName string, rec record.Record) error {
	if s.validator == nil || !s.validator.HasSchema(resourceName) {
		return nil
	}
	return s.validator.ValidateRecord(resourceName, rec)
}

// flush persists the full content after a mutation. Errors are logged, not
// propagated: in-memory state is authoritative for in-process readers.
func (s *Store) flush(ctx context.Context) {
	if s.driver == nil {
		return
	}
	if err := s.driver.Save(record.CopySet(s.data)); err != nil {
		logger.FromContext(ctx).WithError(err).Errorln("cannot flush store content")
	}
}

// findIndex locates a record by key value with tolerant identifier comparison,
// so "3" finds 3 and vice versa
func findIndex(records []record.Record, key string, id interface{}) int {
	for i, rec := range records {
		if record.SameIdentifier(rec[key], id) {
			return i
		}
	}
	return -1
}

// nextNumericKey returns max(existing)+1, or 1 for an empty collection.
// String keys do not count into the maximum but still tolerantly collide with
// a generated number, so the candidate bumps past any match.
func nextNumericKey(records []record.Record, key string) float64 {
	max := float64(0)
	for _, rec := range records {
		if value, ok := record.Numeric(rec[key]); ok && value > max {
			max = value
		}
	}
	next := max + 1
	for findIndex(records, key, next) >= 0 {
		next++
	}
	return next
}

// applyDefaults fills declared default values into absent fields
func applyDefaults(cfg *resource.Config, rec record.Record) {
	for _, field := range cfg.Fields {
		if field.Default == nil {
			continue
		}
		if _, ok := rec[field.Name]; ok {
			continue
		}
		rec[field.Name] = cloneValue(field.Default)
	}
}

// cloneValue deep-copies a JSON value from the immutable configuration
func cloneValue(value interface{}) interface{} {
	data, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var clone interface{}
	if err := json.Unmarshal(data, &clone); err != nil {
		return value
	}
	return clone
}
