package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/idbtx/internal/idb"
)

// Scenario is a conformance scenario: a schema, seed data, a script of
// transactions, and assertions over the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name" json:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description" json:"description"`

	// Database is the database name. Defaults to Name.
	Database string `yaml:"database,omitempty" json:"database,omitempty"`

	// Stores are created before any transaction runs.
	Stores []StoreDef `yaml:"stores" json:"stores"`

	// Seed records are written directly, outside any transaction.
	Seed []SeedRecord `yaml:"seed,omitempty" json:"seed,omitempty"`

	// Transactions are opened in order by the script task, each followed by
	// its steps.
	Transactions []TxDef `yaml:"transactions" json:"transactions"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions" json:"assertions"`

	// MaxTicks bounds the run. Zero means the scheduler default.
	MaxTicks int `yaml:"max_ticks,omitempty" json:"max_ticks,omitempty"`
}

// StoreDef declares an object store.
type StoreDef struct {
	Name          string `yaml:"name" json:"name"`
	KeyPath       string `yaml:"key_path,omitempty" json:"key_path,omitempty"`
	AutoIncrement bool   `yaml:"auto_increment,omitempty" json:"auto_increment,omitempty"`
}

// SeedRecord is an initial record.
type SeedRecord struct {
	Store string `yaml:"store" json:"store"`
	Key   any    `yaml:"key" json:"key"`
	Value any    `yaml:"value" json:"value"`
}

// TxDef declares a transaction.
type TxDef struct {
	// Name labels the transaction in the trace. Defaults to "tx<N>".
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Mode is readonly, readwrite or versionchange.
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty"`

	// Scope lists the stores. Ignored for versionchange.
	Scope []string `yaml:"scope,omitempty" json:"scope,omitempty"`

	// Version is the target version of a versionchange transaction.
	Version uint64 `yaml:"version,omitempty" json:"version,omitempty"`

	Steps []Step `yaml:"steps" json:"steps"`
}

// Step is one scripted action against a transaction.
type Step struct {
	// Op is the action; see the Op* constants.
	Op string `yaml:"op" json:"op"`

	// Name labels the step's request in the trace. Defaults to
	// "<tx>.<op><N>".
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Store defaults to the only store in the transaction's scope.
	Store string `yaml:"store,omitempty" json:"store,omitempty"`

	Key       any       `yaml:"key,omitempty" json:"key,omitempty"`
	Value     any       `yaml:"value,omitempty" json:"value,omitempty"`
	Range     *RangeDef `yaml:"range,omitempty" json:"range,omitempty"`
	Count     int       `yaml:"count,omitempty" json:"count,omitempty"`
	Direction string    `yaml:"direction,omitempty" json:"direction,omitempty"`

	// Error is the DOM error name a "fail" step's operation fails with.
	Error string `yaml:"error,omitempty" json:"error,omitempty"`

	// KeyPath and AutoIncrement configure "create_store".
	KeyPath       string `yaml:"key_path,omitempty" json:"key_path,omitempty"`
	AutoIncrement bool   `yaml:"auto_increment,omitempty" json:"auto_increment,omitempty"`

	// PreventDefault cancels the request's error event.
	PreventDefault bool `yaml:"prevent_default,omitempty" json:"prevent_default,omitempty"`

	// ListenerError makes the request's listener fail with this message.
	ListenerError string `yaml:"listener_error,omitempty" json:"listener_error,omitempty"`

	// Then runs inside the request's success listener.
	Then []Step `yaml:"then,omitempty" json:"then,omitempty"`

	// Later is scheduled as a separate task from the success listener.
	Later []Step `yaml:"later,omitempty" json:"later,omitempty"`
}

// RangeDef is a key range. A nil bound is unbounded.
type RangeDef struct {
	Lower     any  `yaml:"lower,omitempty" json:"lower,omitempty"`
	Upper     any  `yaml:"upper,omitempty" json:"upper,omitempty"`
	LowerOpen bool `yaml:"lower_open,omitempty" json:"lower_open,omitempty"`
	UpperOpen bool `yaml:"upper_open,omitempty" json:"upper_open,omitempty"`
}

// Step operations.
const (
	OpPut         = "put"
	OpAdd         = "add"
	OpGet         = "get"
	OpGetAll      = "get_all"
	OpDelete      = "delete"
	OpClear       = "clear"
	OpCount       = "count"
	OpCursor      = "cursor"
	OpFail        = "fail"
	OpCommit      = "commit"
	OpAbort       = "abort"
	OpCreateStore = "create_store"
	OpDeleteStore = "delete_store"
)

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type" json:"type"`

	// Events is the expected label order (event_order). Labels need not be
	// consecutive.
	Events []string `yaml:"events,omitempty" json:"events,omitempty"`

	// Event is a "<target>:<type>" label (event_count, event_absent,
	// later_tick).
	Event string `yaml:"event,omitempty" json:"event,omitempty"`

	// After is the label Event must follow on a strictly later tick
	// (later_tick).
	After string `yaml:"after,omitempty" json:"after,omitempty"`

	// Count is the exact number of occurrences (event_count).
	Count int `yaml:"count,omitempty" json:"count,omitempty"`

	// Tx names a transaction (tx_state, tx_error).
	Tx string `yaml:"tx,omitempty" json:"tx,omitempty"`

	// State is the expected transaction state (tx_state).
	State string `yaml:"state,omitempty" json:"state,omitempty"`

	// Request names a request (request_error).
	Request string `yaml:"request,omitempty" json:"request,omitempty"`

	// Error is the expected DOM error name; empty means none (tx_error,
	// request_error).
	Error string `yaml:"error,omitempty" json:"error,omitempty"`

	// Store, Key and Value select a record (record, record_absent).
	Store string `yaml:"store,omitempty" json:"store,omitempty"`
	Key   any    `yaml:"key,omitempty" json:"key,omitempty"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertEventOrder   = "event_order"
	AssertEventCount   = "event_count"
	AssertEventAbsent  = "event_absent"
	AssertLaterTick    = "later_tick"
	AssertTxState      = "tx_state"
	AssertTxError      = "tx_error"
	AssertRecord       = "record"
	AssertRecordAbsent = "record_absent"
	AssertRequestError = "request_error"
)

// LoadScenario reads a scenario file. Files ending in .cue are evaluated
// with CUE; everything else is parsed as YAML. Unknown fields are
// rejected in both formats.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario *Scenario
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		scenario, err = ParseCUE(data, path)
	} else {
		scenario, err = ParseYAML(data)
	}
	if err != nil {
		return nil, err
	}
	return scenario, nil
}

// ParseYAML decodes and validates a YAML scenario.
func ParseYAML(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// ParseCUE evaluates a CUE scenario and decodes the concrete result.
// filename is used in error positions.
func ParseCUE(data []byte, filename string) (*Scenario, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile CUE: %w", err)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("scenario is not concrete: %w", err)
	}

	raw, err := value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export CUE: %w", err)
	}

	var scenario Scenario
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to decode CUE scenario: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and cross references.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Transactions) == 0 {
		return fmt.Errorf("transactions list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.MaxTicks < 0 {
		return fmt.Errorf("max_ticks must be non-negative")
	}

	stores := map[string]bool{}
	for i, st := range s.Stores {
		if st.Name == "" {
			return fmt.Errorf("stores[%d]: name is required", i)
		}
		if stores[st.Name] {
			return fmt.Errorf("stores[%d]: duplicate store %q", i, st.Name)
		}
		stores[st.Name] = true
	}

	for i, rec := range s.Seed {
		if !stores[rec.Store] {
			return fmt.Errorf("seed[%d]: unknown store %q", i, rec.Store)
		}
	}

	txNames := map[string]bool{}
	for i, tx := range s.Transactions {
		name := txLabel(tx, i)
		if txNames[name] {
			return fmt.Errorf("transactions[%d]: duplicate name %q", i, name)
		}
		txNames[name] = true

		switch tx.Mode {
		case "versionchange":
			if tx.Version == 0 {
				return fmt.Errorf("transactions[%d]: version is required for versionchange", i)
			}
		case "", "readonly", "readwrite":
			if len(tx.Scope) == 0 {
				return fmt.Errorf("transactions[%d]: scope is required", i)
			}
		default:
			return fmt.Errorf("transactions[%d]: unknown mode %q", i, tx.Mode)
		}

		if err := validateSteps(fmt.Sprintf("transactions[%d]", i), tx.Steps); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateSteps(path string, steps []Step) error {
	for i, step := range steps {
		p := fmt.Sprintf("%s.steps[%d]", path, i)
		switch step.Op {
		case OpPut, OpAdd, OpClear, OpCount, OpCursor, OpGetAll, OpCommit, OpAbort:
		case OpGet, OpDelete:
			if step.Key == nil && step.Range == nil {
				return fmt.Errorf("%s: key or range is required for %s", p, step.Op)
			}
		case OpFail:
			if step.Error == "" {
				return fmt.Errorf("%s: error is required for fail", p)
			}
		case OpCreateStore, OpDeleteStore:
			if step.Store == "" {
				return fmt.Errorf("%s: store is required for %s", p, step.Op)
			}
		case "":
			return fmt.Errorf("%s: op is required", p)
		default:
			return fmt.Errorf("%s: unknown op %q", p, step.Op)
		}

		if step.Direction != "" {
			if _, err := idb.ParseDirection(step.Direction); err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
		}
		if err := validateSteps(p+".then", step.Then); err != nil {
			return err
		}
		if err := validateSteps(p+".later", step.Later); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertEventCount, AssertEventAbsent:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertLaterTick:
		if a.Event == "" || a.After == "" {
			return fmt.Errorf("assertions[%d]: event and after are required for later_tick", index)
		}
	case AssertTxState:
		if a.Tx == "" || a.State == "" {
			return fmt.Errorf("assertions[%d]: tx and state are required for tx_state", index)
		}
	case AssertTxError:
		if a.Tx == "" {
			return fmt.Errorf("assertions[%d]: tx is required for tx_error", index)
		}
	case AssertRecord:
		if a.Store == "" || a.Key == nil {
			return fmt.Errorf("assertions[%d]: store and key are required for record", index)
		}
	case AssertRecordAbsent:
		if a.Store == "" || a.Key == nil {
			return fmt.Errorf("assertions[%d]: store and key are required for record_absent", index)
		}
	case AssertRequestError:
		if a.Request == "" {
			return fmt.Errorf("assertions[%d]: request is required for request_error", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func txLabel(tx TxDef, index int) string {
	if tx.Name != "" {
		return tx.Name
	}
	return fmt.Sprintf("tx%d", index+1)
}
