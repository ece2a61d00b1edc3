package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(
		Column{Name: "a", Type: Int64, Values: []any{int64(1), int64(2)}},
		Column{Name: "b", Type: String, Values: []any{"x"}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has 1 rows, expected 2")

	_, err = New(
		Column{Name: "a", Type: Int64, Values: []any{int64(1)}},
		Column{Name: "a", Type: String, Values: []any{"x"}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	ds, err := New(Column{Name: "a", Type: Int64, Values: []any{int64(1), nil}})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Rows())
	assert.Equal(t, []string{"a"}, ds.Names())
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	ds, err := New(Column{Name: "a", Type: String, Values: []any{"x", nil}})
	require.NoError(t, err)

	clone := ds.Clone()
	clone.Columns[0].Name = "b"
	clone.Columns[0].Values[1] = "filled"

	assert.Equal(t, "a", ds.Columns[0].Name)
	assert.Nil(t, ds.Columns[0].Values[1])
	assert.Equal(t, -1, ds.Index("b"))
}

func TestText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     any
		want   string
		wantOK bool
	}{
		{nil, "", false},
		{"s", "s", true},
		{int64(-42), "-42", true},
		{1.5, "1.5", true},
		{float64(3), "3", true},
		{true, "true", true},
	}
	for _, tt := range tests {
		got, ok := Text(tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.wantOK, ok)
	}
}

func TestEmptyDataset(t *testing.T) {
	t.Parallel()

	ds := &Dataset{}
	assert.Equal(t, 0, ds.Rows())
	_, ok := ds.Column("a")
	assert.False(t, ok)
}
