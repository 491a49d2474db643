package harness

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/roach88/idbtx/internal/event"
	"github.com/roach88/idbtx/internal/idb"
	"github.com/roach88/idbtx/internal/sched"
	"github.com/roach88/idbtx/internal/testutil"
	"github.com/roach88/idbtx/internal/trace"
)

// Target labels for events that are not tied to a scripted object.
const (
	dbLabel        = "db"
	schedulerLabel = "scheduler"
)

// Option configures a scenario run.
type Option func(*config)

type config struct {
	logger    *slog.Logger
	tickLimit int
	observer  idb.Observer
	clock     trace.Sequencer
}

// WithLogger sets the logger handed to the scheduler and database.
// Runs discard logs by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithTickLimit overrides the scenario's max_ticks.
func WithTickLimit(n int) Option {
	return func(c *config) {
		c.tickLimit = n
	}
}

// WithObserver forwards transaction and request outcomes to o.
func WithObserver(o idb.Observer) Option {
	return func(c *config) {
		c.observer = o
	}
}

// WithClock stamps trace events from c instead of a fresh clock. Sharing a
// clock across runs keeps sequence numbers increasing between them.
func WithClock(clock trace.Sequencer) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// runner executes one scenario against a fresh scheduler and database.
type runner struct {
	scenario *Scenario
	queue    *sched.Queue
	db       *idb.Database
	rec      *trace.Recorder
	result   *Result
	limit    int

	txs      map[string]*idb.Transaction
	txOrder  []string
	labels   map[event.Target]string
	requests map[string]*idb.Request
	counters map[string]int
	handles  map[*idb.Transaction]map[string]*idb.ObjectStore
}

// Run executes a scenario and returns the result.
//
// Each run owns its scheduler, database, ID generator and clock, so runs
// are independent and deterministic. All transactions are opened and
// their steps applied by a single script task; the scheduler is then
// drained and the assertions evaluated against the trace and final state.
//
// The returned error reports a scenario that cannot be set up (bad schema
// or seed data). Failed assertions are reported in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := config{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		tickLimit: scenario.MaxTicks,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tickLimit <= 0 {
		cfg.tickLimit = sched.DefaultTickLimit
	}

	queue := sched.NewQueue(sched.WithLogger(cfg.logger), sched.WithTickLimit(cfg.tickLimit))

	dbOpts := []idb.Option{
		idb.WithLogger(cfg.logger),
		idb.WithIDGenerator(testutil.NewSequenceGenerator("tx")),
	}
	if cfg.observer != nil {
		dbOpts = append(dbOpts, idb.WithObserver(cfg.observer))
	}

	name := scenario.Database
	if name == "" {
		name = scenario.Name
	}

	rec := trace.NewRecorder()
	if cfg.clock != nil {
		rec = trace.NewRecorderWithClock(cfg.clock)
	}

	r := &runner{
		scenario: scenario,
		queue:    queue,
		db:       idb.NewDatabase(name, queue, dbOpts...),
		rec:      rec,
		result:   NewResult(),
		limit:    cfg.tickLimit,
		txs:      make(map[string]*idb.Transaction),
		labels:   make(map[event.Target]string),
		requests: make(map[string]*idb.Request),
		counters: make(map[string]int),
		handles:  make(map[*idb.Transaction]map[string]*idb.ObjectStore),
	}

	if err := r.setup(); err != nil {
		return nil, fmt.Errorf("setup failed: %w", err)
	}

	r.watchDatabase()
	queue.Schedule(r.script)
	r.drain()

	r.result.Trace = r.rec.Events()
	r.result.Ticks = queue.Ticks()
	for _, label := range r.txOrder {
		tx := r.txs[label]
		r.result.Transactions[label] = TxOutcome{
			ID:    tx.ID(),
			Mode:  tx.Mode().String(),
			State: tx.State().String(),
			Error: idb.NameOf(tx.Error()),
		}
	}

	actx := &AssertionContext{
		Database:     r.db,
		Transactions: r.txs,
		Requests:     r.requests,
	}
	for _, msg := range EvaluateAssertions(r.result, scenario.Assertions, actx) {
		r.result.AddError(msg)
	}

	return r.result, nil
}

// setup creates the schema and seed records outside any transaction.
func (r *runner) setup() error {
	for _, def := range r.scenario.Stores {
		opts := idb.StoreOptions{KeyPath: def.KeyPath, AutoIncrement: def.AutoIncrement}
		if _, err := r.db.CreateStore(def.Name, opts); err != nil {
			return fmt.Errorf("store %q: %w", def.Name, err)
		}
	}
	for i, rec := range r.scenario.Seed {
		rs, ok := r.db.LookupStore(rec.Store)
		if !ok {
			return fmt.Errorf("seed[%d]: unknown store %q", i, rec.Store)
		}
		if err := rs.Load(rec.Key, rec.Value); err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
	}
	return nil
}

// drain flushes the scheduler until it is empty. Task errors are listener
// failures re-raised by a driver; they are recorded and flushing resumes.
func (r *runner) drain() {
	for {
		err := r.queue.Flush()
		if err == nil {
			return
		}

		var limitErr *sched.TickLimitError
		if errors.As(err, &limitErr) {
			r.result.AddError(limitErr.Error())
			return
		}

		r.emit(schedulerLabel, "uncaught", err.Error(), "")
		if r.queue.Ticks() >= int64(r.limit) && r.queue.Len() > 0 {
			r.result.AddError(fmt.Sprintf("tick limit %d exceeded with %d tasks pending", r.limit, r.queue.Len()))
			return
		}
	}
}

// script is the first task: it opens every transaction and applies their
// steps.
func (r *runner) script() error {
	for i, def := range r.scenario.Transactions {
		label := txLabel(def, i)
		tx, err := r.open(def)
		if err != nil {
			r.emit(label, "throw", idb.NameOf(err), "")
			continue
		}

		r.txs[label] = tx
		r.txOrder = append(r.txOrder, label)
		r.labels[tx] = label
		r.watchTransaction(label, tx)
		r.apply(label, tx, def.Steps)
	}
	return nil
}

func (r *runner) open(def TxDef) (*idb.Transaction, error) {
	if def.Mode == "versionchange" {
		return r.db.Upgrade(def.Version)
	}
	mode, err := idb.ParseMode(def.Mode)
	if err != nil {
		return nil, err
	}
	return r.db.Transaction(def.Scope, mode)
}

// apply runs steps in order. Synchronous failures are recorded as
// "<step>:throw" and do not stop later steps.
func (r *runner) apply(txl string, tx *idb.Transaction, steps []Step) {
	for _, step := range steps {
		label := r.stepLabel(txl, step)
		req, err := r.issue(tx, step)
		if err != nil {
			r.emit(label, "throw", idb.NameOf(err), "")
			continue
		}
		if req == nil {
			continue
		}

		r.requests[label] = req
		r.labels[req] = label
		r.watchRequest(txl, label, tx, req, step)
	}
}

func (r *runner) stepLabel(txl string, step Step) string {
	if step.Name != "" {
		return step.Name
	}
	key := txl + "." + step.Op
	r.counters[key]++
	return fmt.Sprintf("%s%d", key, r.counters[key])
}

// issue performs one step. Steps that produce no request return nil.
func (r *runner) issue(tx *idb.Transaction, step Step) (*idb.Request, error) {
	switch step.Op {
	case OpCommit:
		return nil, tx.Commit()
	case OpAbort:
		return nil, tx.Abort()
	case OpCreateStore:
		_, err := tx.CreateObjectStore(step.Store, idb.StoreOptions{
			KeyPath:       step.KeyPath,
			AutoIncrement: step.AutoIncrement,
		})
		return nil, err
	case OpDeleteStore:
		return nil, tx.DeleteObjectStore(step.Store)
	case OpFail:
		return r.fail(tx, step)
	}

	store, err := r.handle(tx, r.storeName(tx, step))
	if err != nil {
		return nil, err
	}
	query, err := buildQuery(step)
	if err != nil {
		return nil, err
	}

	switch step.Op {
	case OpPut:
		return store.Put(step.Value, step.Key)
	case OpAdd:
		return store.Add(step.Value, step.Key)
	case OpGet:
		return store.Get(query)
	case OpGetAll:
		return store.GetAll(query, step.Count)
	case OpDelete:
		return store.Delete(query)
	case OpClear:
		return store.Clear()
	case OpCount:
		return store.Count(query)
	case OpCursor:
		dir, err := idb.ParseDirection(step.Direction)
		if err != nil {
			return nil, err
		}
		return store.OpenCursor(query, dir)
	default:
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}
}

// scriptSource is the source of scripted failing requests.
type scriptSource string

func (s scriptSource) SourceName() string { return string(s) }

// fail enqueues an operation that fails with the step's error name.
func (r *runner) fail(tx *idb.Transaction, step Step) (*idb.Request, error) {
	var source idb.Source = scriptSource("script")
	if step.Store != "" {
		store, err := r.handle(tx, step.Store)
		if err != nil {
			return nil, err
		}
		source = store
	}
	name := step.Error
	return tx.Enqueue(source, func() (any, error) {
		return nil, idb.NewError(name, "scripted failure")
	}, nil)
}

// handle returns the store handle a script obtained earlier, or asks the
// transaction for one. Steps in later tasks reuse held handles.
func (r *runner) handle(tx *idb.Transaction, name string) (*idb.ObjectStore, error) {
	if h, ok := r.handles[tx][name]; ok {
		return h, nil
	}
	h, err := tx.ObjectStore(name)
	if err != nil {
		return nil, err
	}
	if r.handles[tx] == nil {
		r.handles[tx] = make(map[string]*idb.ObjectStore)
	}
	r.handles[tx][name] = h
	return h, nil
}

// storeName defaults to the only store in the transaction's scope.
func (r *runner) storeName(tx *idb.Transaction, step Step) string {
	if step.Store != "" {
		return step.Store
	}
	if scope := tx.Scope(); len(scope) == 1 {
		return scope[0]
	}
	return ""
}

// buildQuery converts a step's key or range into an idb query. A step with
// neither yields nil, which matches everything where allowed.
func buildQuery(step Step) (any, error) {
	if step.Range == nil {
		return step.Key, nil
	}
	rng := step.Range
	switch {
	case rng.Lower != nil && rng.Upper != nil:
		return idb.Bound(rng.Lower, rng.Upper, rng.LowerOpen, rng.UpperOpen)
	case rng.Lower != nil:
		return idb.LowerBound(rng.Lower, rng.LowerOpen)
	case rng.Upper != nil:
		return idb.UpperBound(rng.Upper, rng.UpperOpen)
	default:
		return nil, nil
	}
}

// watchRequest records the request's events and installs the step's hooks.
func (r *runner) watchRequest(txl, label string, tx *idb.Transaction, req *idb.Request, step Step) {
	req.Emitter().AddListener("success", func(ev *event.Event) error {
		result, _ := req.Result()

		if c, ok := result.(*idb.Cursor); ok {
			r.emit(label, "success", "", canonical(c.Key()))
			if err := c.Continue(); err != nil {
				r.emit(label, "throw", idb.NameOf(err), "")
			}
			return nil
		}

		r.emit(label, "success", "", canonical(result))
		if step.ListenerError != "" {
			return errors.New(step.ListenerError)
		}
		r.apply(txl, tx, step.Then)
		if len(step.Later) > 0 {
			later := step.Later
			r.queue.Schedule(func() error {
				r.apply(txl, tx, later)
				return nil
			})
		}
		return nil
	})

	req.Emitter().AddListener("error", func(ev *event.Event) error {
		r.emit(label, "error", idb.NameOf(req.Err()), "")
		if step.PreventDefault {
			ev.PreventDefault()
		}
		if step.ListenerError != "" {
			return errors.New(step.ListenerError)
		}
		return nil
	})
}

func (r *runner) watchTransaction(label string, tx *idb.Transaction) {
	tx.Emitter().AddListener("error", func(ev *event.Event) error {
		r.emit(label, "error", r.errorOf(ev), r.labels[ev.Target()])
		return nil
	})
	tx.Emitter().AddListener("complete", func(*event.Event) error {
		r.emit(label, "complete", "", "")
		return nil
	})
	tx.Emitter().AddListener("abort", func(*event.Event) error {
		r.emit(label, "abort", idb.NameOf(tx.Error()), "")
		return nil
	})
}

func (r *runner) watchDatabase() {
	for _, typ := range []string{"error", "abort"} {
		r.db.Emitter().AddListener(typ, func(ev *event.Event) error {
			r.emit(dbLabel, ev.Type, r.errorOf(ev), r.labels[ev.Target()])
			return nil
		})
	}
}

// errorOf names the failure carried by an event's target.
func (r *runner) errorOf(ev *event.Event) string {
	switch t := ev.Target().(type) {
	case *idb.Request:
		return idb.NameOf(t.Err())
	case *idb.Transaction:
		return idb.NameOf(t.Error())
	default:
		return ""
	}
}

func (r *runner) emit(target, typ, errName, detail string) {
	r.rec.Record(trace.Event{
		Tick:   r.queue.Ticks(),
		Target: target,
		Type:   typ,
		Error:  errName,
		Detail: detail,
	})
}

// canonical renders v as canonical JSON, falling back to %v for values
// JSON cannot express.
func canonical(v any) string {
	b, err := trace.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
