package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/systmms/dsload/internal/dataset"
	"github.com/systmms/dsload/internal/logging"
)

// FillTypeError reports a fill value that cannot be stored in its column
type FillTypeError struct {
	Column string
	Type   dataset.Type
	Value  any
	Reason string
}

func (e *FillTypeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot fill column '%s': %s", e.Column, e.Reason)
	}
	return fmt.Sprintf("cannot fill %s column '%s' with %T value %v", e.Type, e.Column, e.Value, e.Value)
}

// Options tunes an Engine
type Options struct {
	// WarnOnNoop logs a warning for every rule that names an absent column.
	// Such rules are always skipped; this only makes schema drift visible.
	WarnOnNoop bool
	Logger     *logging.Logger
}

// Engine applies rule sets
type Engine struct {
	warnOnNoop bool
	logger     *logging.Logger
}

// NewEngine creates an Engine
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{warnOnNoop: opts.WarnOnNoop, logger: logger}
}

// Apply runs the rules with default options
func Apply(ds *dataset.Dataset, rules *RuleSet) (*dataset.Dataset, error) {
	return NewEngine(Options{}).Apply(ds, rules)
}

// Apply returns a new dataset with drop, rename and fill applied in that
// order. The input is never modified. Rules naming absent columns are
// no-ops.
func (e *Engine) Apply(ds *dataset.Dataset, rules *RuleSet) (*dataset.Dataset, error) {
	if rules == nil {
		return ds.Clone(), nil
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	out := e.drop(ds, rules.DropColumns)

	if err := e.rename(out, rules); err != nil {
		return nil, err
	}

	if err := e.fill(out, rules.FillNA); err != nil {
		return nil, err
	}

	return out, nil
}

// drop copies every column that survives into a new dataset
func (e *Engine) drop(ds *dataset.Dataset, names []string) *dataset.Dataset {
	doomed := make(map[string]bool, len(names))
	for _, name := range names {
		doomed[name] = true
		if e.warnOnNoop && ds.Index(name) < 0 {
			e.logger.Warn("drop_columns: column '%s' not present", name)
		}
	}

	out := &dataset.Dataset{Columns: make([]dataset.Column, 0, len(ds.Columns))}
	for _, col := range ds.Columns {
		if doomed[col.Name] {
			continue
		}
		values := make([]any, len(col.Values))
		copy(values, col.Values)
		out.Columns = append(out.Columns, dataset.Column{Name: col.Name, Type: col.Type, Values: values})
	}
	return out
}

// rename relabels all matching columns at once, so swaps and chains behave
// as a single mapping. Any resulting duplicate name is a collision.
func (e *Engine) rename(ds *dataset.Dataset, rules *RuleSet) error {
	if len(rules.RenameColumns) == 0 {
		return nil
	}

	for _, old := range rules.renameOrder() {
		if e.warnOnNoop && ds.Index(old) < 0 {
			e.logger.Warn("rename_columns: column '%s' not present", old)
		}
	}

	newNames := make([]string, len(ds.Columns))
	holders := make(map[string][]string, len(ds.Columns))
	for i, col := range ds.Columns {
		name := col.Name
		if target, ok := rules.RenameColumns[col.Name]; ok {
			name = target
		}
		newNames[i] = name
		holders[name] = append(holders[name], col.Name)
	}

	for _, name := range sortedKeys(holders) {
		if sources := holders[name]; len(sources) > 1 {
			return &RenameCollisionError{Target: name, Sources: sources}
		}
	}

	for i := range ds.Columns {
		ds.Columns[i].Name = newNames[i]
	}
	return nil
}

func (e *Engine) fill(ds *dataset.Dataset, fills map[string]any) error {
	for _, name := range sortedKeys(fills) {
		col, ok := ds.Column(name)
		if !ok {
			if e.warnOnNoop {
				e.logger.Warn("fill_na: column '%s' not present", name)
			}
			continue
		}

		value, err := coerce(col.Type, fills[name])
		if err != nil {
			return &FillTypeError{Column: name, Type: col.Type, Value: fills[name], Reason: err.Error()}
		}

		for i, v := range col.Values {
			if v == nil {
				col.Values[i] = value
			}
		}
	}
	return nil
}

// coerce converts a fill value to the column's element type
func coerce(t dataset.Type, v any) (any, error) {
	switch t {
	case dataset.Int64:
		switch val := v.(type) {
		case int:
			return int64(val), nil
		case int64:
			return val, nil
		case json.Number:
			if i, err := val.Int64(); err == nil {
				return i, nil
			}
			f, err := val.Float64()
			if err != nil {
				return nil, err
			}
			return integral(f)
		case float64:
			return integral(val)
		}

	case dataset.Float64:
		switch val := v.(type) {
		case int:
			return float64(val), nil
		case int64:
			return float64(val), nil
		case float64:
			return val, nil
		case json.Number:
			return val.Float64()
		}

	case dataset.Bool:
		if val, ok := v.(bool); ok {
			return val, nil
		}

	case dataset.String, "":
		switch val := v.(type) {
		case string:
			return val, nil
		case json.Number:
			return val.String(), nil
		case int:
			return strconv.Itoa(val), nil
		case bool, int64, float64:
			s, _ := dataset.Text(val)
			return s, nil
		}
	}

	return nil, fmt.Errorf("%T value %v is not compatible with %s column", v, v, t)
}

func integral(f float64) (any, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, fmt.Errorf("%v is not an integer", f)
	}
	// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, fmt.Errorf("%v is out of int64 range", f)
	}
	return int64(f), nil
}
