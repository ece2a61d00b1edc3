package transform

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/dsload/internal/dataset"
	"github.com/systmms/dsload/internal/logging"
)

func mustDataset(t *testing.T, cols ...dataset.Column) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(cols...)
	require.NoError(t, err)
	return ds
}

func TestApplyDropRenameFill(t *testing.T) {
	t.Parallel()

	ds := mustDataset(t,
		dataset.Column{Name: "a", Type: dataset.Int64, Values: []any{int64(1), int64(2)}},
		dataset.Column{Name: "b", Type: dataset.Float64, Values: []any{1.5, nil}},
	)
	rules := &RuleSet{
		DropColumns:   []string{"a"},
		RenameColumns: map[string]string{"b": "c"},
		FillNA:        map[string]any{"c": json.Number("0")},
	}

	out, err := Apply(ds, rules)
	require.NoError(t, err)

	require.Len(t, out.Columns, 1)
	assert.Equal(t, "c", out.Columns[0].Name)
	assert.Equal(t, []any{1.5, float64(0)}, out.Columns[0].Values)

	// input untouched
	assert.Equal(t, []string{"a", "b"}, ds.Names())
	assert.Nil(t, ds.Columns[1].Values[1])
}

func TestApplyAbsentColumnsAreNoops(t *testing.T) {
	t.Parallel()

	ds := mustDataset(t, dataset.Column{Name: "x", Type: dataset.String, Values: []any{"v", nil}})

	tests := []struct {
		name  string
		rules *RuleSet
	}{
		{name: "drop", rules: &RuleSet{DropColumns: []string{"y"}}},
		{name: "rename", rules: &RuleSet{RenameColumns: map[string]string{"y": "z"}}},
		{name: "fill", rules: &RuleSet{FillNA: map[string]any{"y": "z"}}},
		{name: "empty", rules: &RuleSet{}},
		{name: "nil", rules: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := Apply(ds, tt.rules)
			require.NoError(t, err)
			assert.Equal(t, ds, out)
			assert.NotSame(t, ds, out)
		})
	}
}

func TestApplyDeterministic(t *testing.T) {
	t.Parallel()

	ds := mustDataset(t,
		dataset.Column{Name: "a", Type: dataset.String, Values: []any{nil}},
		dataset.Column{Name: "b", Type: dataset.String, Values: []any{nil}},
		dataset.Column{Name: "c", Type: dataset.String, Values: []any{nil}},
	)
	rules := &RuleSet{
		RenameColumns: map[string]string{"a": "x", "b": "y", "c": "z"},
		FillNA:        map[string]any{"x": "1", "y": "2", "z": "3"},
	}

	first, err := Apply(ds, rules)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Apply(ds, rules)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, []string{"x", "y", "z"}, first.Names())
}

func TestRenameSwap(t *testing.T) {
	t.Parallel()

	ds := mustDataset(t,
		dataset.Column{Name: "a", Type: dataset.String, Values: []any{"from-a"}},
		dataset.Column{Name: "b", Type: dataset.String, Values: []any{"from-b"}},
	)
	out, err := Apply(ds, &RuleSet{RenameColumns: map[string]string{"a": "b", "b": "a"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a"}, out.Names())
	assert.Equal(t, []any{"from-a"}, out.Columns[0].Values)
}

func TestRenameCollisions(t *testing.T) {
	t.Parallel()

	ds := mustDataset(t,
		dataset.Column{Name: "a", Type: dataset.String, Values: []any{"1"}},
		dataset.Column{Name: "b", Type: dataset.String, Values: []any{"2"}},
		dataset.Column{Name: "c", Type: dataset.String, Values: []any{"3"}},
	)

	tests := []struct {
		name        string
		rules       *RuleSet
		wantTarget  string
		wantSources []string
	}{
		{
			name:        "two renames to one target",
			rules:       &RuleSet{RenameColumns: map[string]string{"a": "z", "b": "z"}},
			wantTarget:  "z",
			wantSources: []string{"a", "b"},
		},
		{
			name:        "rename onto a kept column",
			rules:       &RuleSet{RenameColumns: map[string]string{"a": "c"}},
			wantTarget:  "c",
			wantSources: []string{"a", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Apply(ds, tt.rules)
			var collision *RenameCollisionError
			require.True(t, errors.As(err, &collision))
			assert.Equal(t, tt.wantTarget, collision.Target)
			assert.Equal(t, tt.wantSources, collision.Sources)
		})
	}

	// dropping the holder first frees the name
	out, err := Apply(ds, &RuleSet{DropColumns: []string{"c"}, RenameColumns: map[string]string{"a": "c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, out.Names())
}

func TestFillCoercion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		typ     dataset.Type
		fill    any
		want    any
		wantErr bool
	}{
		{name: "int from json integer", typ: dataset.Int64, fill: json.Number("7"), want: int64(7)},
		{name: "int from integral float", typ: dataset.Int64, fill: json.Number("7.0"), want: int64(7)},
		{name: "int from fraction", typ: dataset.Int64, fill: json.Number("7.5"), wantErr: true},
		{name: "int from string", typ: dataset.Int64, fill: "7", wantErr: true},
		{name: "int from huge float", typ: dataset.Int64, fill: 1e20, wantErr: true},
		{name: "int from json above max", typ: dataset.Int64, fill: json.Number("9223372036854775808"), wantErr: true},
		{name: "int from json below min", typ: dataset.Int64, fill: json.Number("-1e19"), wantErr: true},
		{name: "int at min", typ: dataset.Int64, fill: float64(math.MinInt64), want: int64(math.MinInt64)},
		{name: "float from int", typ: dataset.Float64, fill: 3, want: float64(3)},
		{name: "float from json", typ: dataset.Float64, fill: json.Number("0.5"), want: 0.5},
		{name: "float from bool", typ: dataset.Float64, fill: true, wantErr: true},
		{name: "bool", typ: dataset.Bool, fill: false, want: false},
		{name: "bool from string", typ: dataset.Bool, fill: "false", wantErr: true},
		{name: "string", typ: dataset.String, fill: "n/a", want: "n/a"},
		{name: "string from number", typ: dataset.String, fill: json.Number("0"), want: "0"},
		{name: "string from bool", typ: dataset.String, fill: true, want: "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ds := mustDataset(t, dataset.Column{Name: "c", Type: tt.typ, Values: []any{nil}})

			out, err := Apply(ds, &RuleSet{FillNA: map[string]any{"c": tt.fill}})
			if tt.wantErr {
				var typeErr *FillTypeError
				require.True(t, errors.As(err, &typeErr))
				assert.Equal(t, "c", typeErr.Column)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []any{tt.want}, out.Columns[0].Values)
		})
	}
}

func TestFillOutOfRangeIntegerFromRules(t *testing.T) {
	t.Parallel()

	rules, err := ParseRuleSet([]byte(`{"fill_na":{"n":1e20}}`))
	require.NoError(t, err)
	ds := mustDataset(t, dataset.Column{Name: "n", Type: dataset.Int64, Values: []any{int64(1), nil}})

	_, err = Apply(ds, rules)
	var typeErr *FillTypeError
	require.True(t, errors.As(err, &typeErr))
	assert.Equal(t, "n", typeErr.Column)
	assert.Equal(t, []any{int64(1), nil}, ds.Columns[0].Values)
}

func TestFillLeavesPresentValues(t *testing.T) {
	t.Parallel()

	ds := mustDataset(t, dataset.Column{Name: "n", Type: dataset.Int64, Values: []any{int64(5), nil, int64(6)}})
	out, err := Apply(ds, &RuleSet{FillNA: map[string]any{"n": 0}})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(5), int64(0), int64(6)}, out.Columns[0].Values)
}

func TestWarnOnNoop(t *testing.T) {
	t.Parallel()

	ds := mustDataset(t, dataset.Column{Name: "x", Type: dataset.String, Values: []any{"v"}})
	rules := &RuleSet{
		DropColumns:   []string{"gone"},
		RenameColumns: map[string]string{"old": "new"},
		FillNA:        map[string]any{"missing": "0"},
	}

	var quiet bytes.Buffer
	_, err := NewEngine(Options{Logger: logging.NewWithWriter(&quiet, false)}).Apply(ds, rules)
	require.NoError(t, err)
	assert.Empty(t, quiet.String())

	var loud bytes.Buffer
	out, err := NewEngine(Options{WarnOnNoop: true, Logger: logging.NewWithWriter(&loud, false)}).Apply(ds, rules)
	require.NoError(t, err)
	assert.Equal(t, ds, out)
	assert.Contains(t, loud.String(), "drop_columns: column 'gone' not present")
	assert.Contains(t, loud.String(), "rename_columns: column 'old' not present")
	assert.Contains(t, loud.String(), "fill_na: column 'missing' not present")
}
