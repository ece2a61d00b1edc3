// Package transform applies declarative column rules to a dataset.
package transform

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/rules.schema.json
var rulesSchema []byte

// RuleSet is the declarative transform configuration. Every group is
// optional. Rules are applied in a fixed order: drop, rename, fill.
type RuleSet struct {
	DropColumns   []string          `json:"drop_columns,omitempty"`
	RenameColumns map[string]string `json:"rename_columns,omitempty"`
	FillNA        map[string]any    `json:"fill_na,omitempty"`
}

// RenameCollisionError reports renames that would give two columns the same
// name
type RenameCollisionError struct {
	Target  string
	Sources []string
}

func (e *RenameCollisionError) Error() string {
	return fmt.Sprintf("rename collision: columns %s would all be named '%s'",
		strings.Join(quoteAll(e.Sources), ", "), e.Target)
}

// ParseRuleSet validates raw JSON rules against the rules schema, decodes
// them and runs Validate. Numbers in fill_na decode as json.Number.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return &RuleSet{}, nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(rulesSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("transform rules validation error: %w", err)
	}
	if !result.Valid() {
		var messages []string
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return nil, fmt.Errorf("invalid transform rules:\n  - %s", strings.Join(messages, "\n  - "))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rules RuleSet
	if err := dec.Decode(&rules); err != nil {
		return nil, fmt.Errorf("failed to decode transform rules: %w", err)
	}

	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &rules, nil
}

// Validate checks the rules without looking at any data. Renames of two
// source columns to one target are always a collision.
func (r *RuleSet) Validate() error {
	targets := make(map[string][]string)
	for _, old := range r.renameOrder() {
		target := r.RenameColumns[old]
		if old == "" || target == "" {
			return fmt.Errorf("rename_columns entries need non-empty names")
		}
		targets[target] = append(targets[target], old)
	}

	for _, target := range sortedKeys(targets) {
		if sources := targets[target]; len(sources) > 1 {
			return &RenameCollisionError{Target: target, Sources: sources}
		}
	}

	for _, col := range sortedKeys(r.FillNA) {
		if r.FillNA[col] == nil {
			return &FillTypeError{Column: col, Value: nil, Reason: "fill value is null"}
		}
	}
	return nil
}

// IsEmpty reports whether the rule set changes nothing
func (r *RuleSet) IsEmpty() bool {
	return len(r.DropColumns) == 0 && len(r.RenameColumns) == 0 && len(r.FillNA) == 0
}

func (r *RuleSet) renameOrder() []string {
	return sortedKeys(r.RenameColumns)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = "'" + n + "'"
	}
	return out
}
