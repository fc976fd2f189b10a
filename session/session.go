package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/strataorm/strata"
	"github.com/strataorm/strata/dialect"
	"github.com/strataorm/strata/dialect/sql/sqlgraph"
	"github.com/strataorm/strata/model"
	"github.com/strataorm/strata/schema/ref"
)

// LoadFlag controls how Get resolves a record that is not resident.
type LoadFlag uint8

// Load flags.
const (
	// LoadDefault returns nil when the record is not resident.
	LoadDefault LoadFlag = iota
	// LoadStub returns a placeholder without a round-trip.
	LoadStub
	// LoadFetch performs a lookup round-trip.
	LoadFetch
)

// Session is a unit of work: it owns an identity map of resident
// records and the working set of changed ones, and persists the whole
// set atomically in SaveChanges. A session is not safe for concurrent
// mutation; the Concurrent option enables shared read-only use.
type Session struct {
	model      *model.Model
	driver     dialect.Driver
	classifier dialect.Classifier
	log        *slog.Logger
	clock      func() time.Time

	readOnly   bool
	concurrent bool
	validate   bool

	mu      sync.RWMutex
	loaded  map[string]*Record // identity map, keyed by key fingerprint
	changed []*Record          // working set, in discovery order
	lists   []*ListChange

	ranks map[string]int // FK dependency ranks, for submit ordering
	hooks hookSet
	sf    singleflight.Group
}

// Option configures a session.
type Option func(*Session)

// ReadOnly makes every mutating operation fail with ErrReadOnly.
func ReadOnly() Option {
	return func(s *Session) { s.readOnly = true }
}

// Concurrent guards the identity map for shared concurrent reads and
// deduplicates simultaneous loads of the same key. It implies ReadOnly.
func Concurrent() Option {
	return func(s *Session) { s.concurrent = true; s.readOnly = true }
}

// WithClock injects the time source used for time-valued defaults.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) { s.clock = clock }
}

// WithLogger sets the structured logger. The default is slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithoutValidation disables the pre-submit validation pass.
func WithoutValidation() Option {
	return func(s *Session) { s.validate = false }
}

// WithClassifier overrides the conflict classifier. The default is the
// classifier registered for the driver's dialect.
func WithClassifier(c dialect.Classifier) Option {
	return func(s *Session) { s.classifier = c }
}

// NewSession returns a session over the given resolved model and
// driver. Sessions are cheap; create one per logical operation and
// discard it after SaveChanges or abandonment.
func NewSession(m *model.Model, drv dialect.Driver, opts ...Option) *Session {
	s := &Session{
		model:    m,
		driver:   drv,
		log:      slog.Default(),
		clock:    time.Now,
		validate: true,
		loaded:   make(map[string]*Record),
		ranks:    sqlgraph.Ranks(m),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.classifier == nil && drv != nil {
		s.classifier = dialect.ClassifierFor(drv.Dialect())
	}
	return s
}

// Model returns the resolved schema the session operates on.
func (s *Session) Model() *model.Model { return s.model }

// New creates a record of the given entity in the New state, applies
// declared defaults, and attaches it to the working set.
func (s *Session) New(entity string) (*Record, error) {
	e, err := s.entity(entity)
	if err != nil {
		return nil, err
	}
	if s.readOnly {
		return nil, strata.ErrReadOnly
	}
	if e.IsView() {
		return nil, fmt.Errorf("strata: cannot create %s: entity is a read-only view", entity)
	}
	r := &Record{
		session: s,
		entity:  e,
		status:  New,
		values:  make([]any, len(e.Columns())),
	}
	r.applyDefaults(s.clock)
	if _, err := s.Attach(r); err != nil {
		return nil, err
	}
	s.fireHooks(hookCreated, r)
	return r, nil
}

// Get resolves a record by primary key. The zero LoadFlag only checks
// residency; LoadStub returns a placeholder without a round-trip;
// LoadFetch loads the row and returns NotFoundError if it is absent.
func (s *Session) Get(ctx context.Context, entity string, flag LoadFlag, keyVals ...any) (*Record, error) {
	e, err := s.entity(entity)
	if err != nil {
		return nil, err
	}
	pk := e.PrimaryKey()
	if pk == nil {
		return nil, fmt.Errorf("strata: %s has no primary key", entity)
	}
	key, err := model.NewEntityKey(pk, keyVals...)
	if err != nil {
		return nil, err
	}
	if key.IsZero() {
		return nil, fmt.Errorf("strata: Get %s: primary key is required", entity)
	}
	fp, err := key.Fingerprint()
	if err != nil {
		return nil, err
	}
	if r := s.resident(fp); r != nil {
		return r, nil
	}
	switch flag {
	case LoadStub:
		return s.attachStub(e, fp, keyVals)
	case LoadFetch:
		return s.fetch(ctx, e, fp, key)
	default:
		return nil, nil
	}
}

// Load hydrates a stub record in place, moving it to Loaded.
func (s *Session) Load(ctx context.Context, r *Record) error {
	if r.session != s {
		return strata.ErrDetached
	}
	if r.status != Stub {
		return nil
	}
	pk := r.entity.PrimaryKey()
	cols := keyColumnNames(pk)
	r.status = Loading
	values, err := sqlgraph.QueryByKey(ctx, s.driver, s.driver.Dialect(), r.entity, cols, r.PrimaryKey().Values())
	if err != nil {
		r.status = Stub
		if err == strata.ErrNotFound {
			return &strata.NotFoundError{Entity: r.entity.Name(), Key: r.PrimaryKey().String()}
		}
		return err
	}
	copy(r.values, values)
	r.status = Loaded
	return nil
}

// fetch loads a row by key into a new attached record. Concurrent
// sessions collapse simultaneous loads of one key into a single
// round-trip.
func (s *Session) fetch(ctx context.Context, e *model.EntityInfo, fp string, key model.EntityKey) (*Record, error) {
	load := func() (any, error) {
		cols := keyColumnNames(e.PrimaryKey())
		values, err := sqlgraph.QueryByKey(ctx, s.driver, s.driver.Dialect(), e, cols, key.Values())
		if err != nil {
			if err == strata.ErrNotFound {
				return nil, &strata.NotFoundError{Entity: e.Name(), Key: key.String()}
			}
			return nil, err
		}
		r := &Record{
			session: s,
			entity:  e,
			status:  Loaded,
			values:  values,
		}
		return s.Attach(r)
	}
	if !s.concurrent {
		r, err := load()
		if err != nil {
			return nil, err
		}
		return r.(*Record), nil
	}
	v, err, _ := s.sf.Do(fp, load)
	if err != nil {
		return nil, err
	}
	return v.(*Record), nil
}

// Attach admits a record into the session and is the single authority
// for identity-map correctness. If a record with the same primary key
// is already resident, the existing instance is canonical: it is
// refreshed from the incoming values and returned, and callers must
// continue with the returned record. New records join the working set
// only; they enter the identity map once their key is known.
func (s *Session) Attach(r *Record) (*Record, error) {
	if r.session != nil && r.session != s {
		return nil, fmt.Errorf("strata: record already attached to another session")
	}
	r.session = s
	if r.status == New {
		s.track(r)
		return r, nil
	}
	key := r.PrimaryKey()
	if key.IsZero() {
		return nil, fmt.Errorf("strata: cannot attach %s without a primary key", r.entity.Name())
	}
	fp, err := key.Fingerprint()
	if err != nil {
		return nil, err
	}
	s.lock()
	existing := s.loaded[fp]
	if existing != nil && existing != r {
		// Refresh the canonical instance unless it carries local
		// changes that a plain reload must not clobber.
		if existing.status == Stub || (existing.status == Loaded && r.status == Loaded) {
			copy(existing.values, r.values)
			existing.status = Loaded
		}
		s.unlock()
		return existing, nil
	}
	s.loaded[fp] = r
	s.unlock()
	if r.status.changed() {
		s.track(r)
	}
	return r, nil
}

// attachStub creates and attaches a placeholder with only key values.
func (s *Session) attachStub(e *model.EntityInfo, fp string, keyVals []any) (*Record, error) {
	r := &Record{
		session: s,
		entity:  e,
		status:  Stub,
		values:  make([]any, len(e.Columns())),
	}
	for i, km := range e.PrimaryKey().ExpandedKeyMembers() {
		r.values[km.Member().Ordinal()] = keyVals[i]
	}
	s.lock()
	if existing := s.loaded[fp]; existing != nil {
		s.unlock()
		return existing, nil
	}
	s.loaded[fp] = r
	s.unlock()
	return r, nil
}

// stubFor returns the resident record for the given target key values,
// or a new stub.
func (s *Session) stubFor(e *model.EntityInfo, toKey *model.KeyInfo, vals []any) (*Record, error) {
	if toKey != e.PrimaryKey() {
		// References to alternate unique keys resolve through a query,
		// not the identity map; callers use EntitySet for that.
		return nil, fmt.Errorf("strata: reference to alternate key %s cannot be stubbed", toKey.Name())
	}
	key, err := model.NewEntityKey(toKey, vals...)
	if err != nil {
		return nil, err
	}
	fp, err := key.Fingerprint()
	if err != nil {
		return nil, err
	}
	if r := s.resident(fp); r != nil {
		return r, nil
	}
	return s.attachStub(e, fp, vals)
}

// Delete marks the record for deletion on the next save. A record
// that was never persisted is dropped outright.
func (s *Session) Delete(r *Record) error {
	if s.readOnly {
		return strata.ErrReadOnly
	}
	if r.session != s {
		return strata.ErrDetached
	}
	if r.entity.IsView() {
		return fmt.Errorf("strata: cannot delete from view %s", r.entity.Name())
	}
	s.fireHooks(hookDeleting, r)
	switch r.status {
	case New:
		r.status = Fantom
		s.untrack(r)
	case Fantom, Deleting:
		// Already gone or going.
	default:
		r.snapshot()
		r.status = Deleting
		s.notifyStatusChanged(r)
	}
	return nil
}

// CanDelete probes every incoming non-cascading reference for rows
// pointing at the record and returns the names of entities that block
// deletion. Probes run concurrently; the empty result means deletable.
func (s *Session) CanDelete(ctx context.Context, r *Record) ([]string, error) {
	if r.session != s {
		return nil, strata.ErrDetached
	}
	key := r.PrimaryKey()
	if key.IsZero() {
		return nil, nil
	}
	var (
		mu       sync.Mutex
		blocking = make(map[string]struct{})
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range s.model.Entities() {
		for _, m := range e.Refs() {
			ri := m.Reference()
			if ri.Target() != r.entity || ri.OnDelete() == ref.Cascade {
				continue
			}
			if ri.ToKey() != r.entity.PrimaryKey() {
				continue
			}
			entity, cols := e, keyColumnNames(ri.FromKey())
			g.Go(func() error {
				exists, err := sqlgraph.QueryExists(gctx, s.driver, s.driver.Dialect(), entity, cols, key.Values())
				if err != nil {
					return err
				}
				if exists {
					mu.Lock()
					blocking[entity.Name()] = struct{}{}
					mu.Unlock()
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(blocking))
	for n := range blocking {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// EntitySet returns the query surface for one entity.
func (s *Session) EntitySet(entity string) (*EntitySet, error) {
	e, err := s.entity(entity)
	if err != nil {
		return nil, err
	}
	return &EntitySet{session: s, entity: e}, nil
}

// HasChanges reports whether the working set holds pending changes.
func (s *Session) HasChanges() bool {
	s.rlock()
	defer s.runlock()
	return len(s.changed) > 0 || len(s.lists) > 0
}

// CancelChanges discards all pending changes: modified records revert
// to their original values, new records become fantoms, and deletions
// are withdrawn.
func (s *Session) CancelChanges() {
	s.lock()
	changed := s.changed
	s.changed = nil
	s.lists = nil
	s.unlock()
	for _, r := range changed {
		switch r.status {
		case New:
			r.status = Fantom
		case Modified, Deleting:
			r.revert()
			r.status = Loaded
		}
	}
}

// notifyStatusChanged keeps the working set consistent with a record's
// status. It is the only mutation path besides Attach.
func (s *Session) notifyStatusChanged(r *Record) {
	if r.status.changed() {
		s.track(r)
		return
	}
	s.untrack(r)
}

// evict removes a fantomized record from the identity map.
func (s *Session) evict(r *Record) {
	key := r.PrimaryKey()
	if key.IsZero() {
		return
	}
	if fp, err := key.Fingerprint(); err == nil {
		s.lock()
		if s.loaded[fp] == r {
			delete(s.loaded, fp)
		}
		s.unlock()
	}
}

func (s *Session) track(r *Record) {
	s.lock()
	defer s.unlock()
	for _, c := range s.changed {
		if c == r {
			return
		}
	}
	s.changed = append(s.changed, r)
}

func (s *Session) untrack(r *Record) {
	s.lock()
	defer s.unlock()
	for i, c := range s.changed {
		if c == r {
			s.changed = append(s.changed[:i], s.changed[i+1:]...)
			return
		}
	}
}

func (s *Session) resident(fp string) *Record {
	s.rlock()
	defer s.runlock()
	return s.loaded[fp]
}

func (s *Session) entity(name string) (*model.EntityInfo, error) {
	e := s.model.Entity(name)
	if e == nil {
		return nil, fmt.Errorf("strata: unknown entity %q", name)
	}
	return e, nil
}

// Locking is a no-op for single-threaded sessions; only the
// Concurrent variant pays for the identity-map mutex.
func (s *Session) lock() {
	if s.concurrent {
		s.mu.Lock()
	}
}

func (s *Session) unlock() {
	if s.concurrent {
		s.mu.Unlock()
	}
}

func (s *Session) rlock() {
	if s.concurrent {
		s.mu.RLock()
	}
}

func (s *Session) runlock() {
	if s.concurrent {
		s.mu.RUnlock()
	}
}

// keyColumnNames returns the expanded column names of a key.
func keyColumnNames(k *model.KeyInfo) []string {
	kms := k.ExpandedKeyMembers()
	names := make([]string, len(kms))
	for i, km := range kms {
		names[i] = km.Name()
	}
	return names
}
