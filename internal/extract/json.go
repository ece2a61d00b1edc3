package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/systmms/dsload/internal/dataset"
)

// DecodeJSON reads either an array of records ([{"a":1},{"a":2}]) or a
// column-oriented object keyed by row index ({"a":{"0":1,"1":2}}). Column
// order follows first appearance in the document.
func DecodeJSON(data []byte) (*dataset.Dataset, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &dataset.Dataset{}, nil
	}

	switch trimmed[0] {
	case '[':
		return decodeRecords(trimmed)
	case '{':
		return decodeColumns(trimmed)
	default:
		return nil, fmt.Errorf("JSON document must be an array of records or an object of columns")
	}
}

func decodeRecords(data []byte) (*dataset.Dataset, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("invalid JSON records: %w", err)
	}

	var names []string
	index := make(map[string]int)
	var cells [][]any

	for row, raw := range records {
		keys, values, err := orderedObject(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", row, err)
		}
		for _, k := range keys {
			if _, ok := index[k]; !ok {
				index[k] = len(names)
				names = append(names, k)
				// earlier rows lacked this column
				cells = append(cells, make([]any, row))
			}
		}
		for i, name := range names {
			v, ok := values[name]
			if !ok {
				cells[i] = append(cells[i], nil)
				continue
			}
			cell, err := scalar(v)
			if err != nil {
				return nil, fmt.Errorf("record %d column '%s': %w", row, name, err)
			}
			cells[i] = append(cells[i], cell)
		}
	}

	return buildColumns(names, cells)
}

func decodeColumns(data []byte) (*dataset.Dataset, error) {
	names, columns, err := orderedObject(data)
	if err != nil {
		return nil, err
	}

	// Rows are aligned by index label, so a label one column lacks becomes
	// a null there rather than shifting later rows up.
	byLabel := make([]map[int]any, len(names))
	seen := make(map[int]bool)
	arrayRows := -1
	for i, name := range names {
		labels, col, isArray, err := columnCells(columns[name])
		if err != nil {
			return nil, fmt.Errorf("column '%s': %w", name, err)
		}
		if isArray {
			if arrayRows >= 0 && len(col) != arrayRows {
				return nil, fmt.Errorf("column '%s' has %d rows, expected %d", name, len(col), arrayRows)
			}
			arrayRows = len(col)
		}
		byLabel[i] = make(map[int]any, len(col))
		for j, label := range labels {
			byLabel[i][label] = col[j]
			seen[label] = true
		}
	}

	rowLabels := make([]int, 0, len(seen))
	for label := range seen {
		rowLabels = append(rowLabels, label)
	}
	sort.Ints(rowLabels)

	cells := make([][]any, len(names))
	for i := range names {
		cells[i] = make([]any, len(rowLabels))
		for j, label := range rowLabels {
			cells[i][j] = byLabel[i][label]
		}
	}
	return buildColumns(names, cells)
}

// columnCells decodes one column given either as a plain array or as an
// object keyed by row index. Array items are labelled by position.
func columnCells(raw json.RawMessage) (labels []int, cells []any, isArray bool, err error) {
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, nil, true, err
		}
		labels = make([]int, len(items))
		cells = make([]any, len(items))
		for j, item := range items {
			cell, err := scalar(item)
			if err != nil {
				return nil, nil, true, fmt.Errorf("row %d: %w", j, err)
			}
			labels[j] = j
			cells[j] = cell
		}
		return labels, cells, true, nil
	}

	idxKeys, byIdx, err := orderedObject(raw)
	if err != nil {
		return nil, nil, false, err
	}

	labels = make([]int, len(idxKeys))
	cells = make([]any, len(idxKeys))
	keyOf := make(map[int]string, len(idxKeys))
	for j, k := range idxKeys {
		n, err := strconv.Atoi(k)
		if err != nil || n < 0 {
			return nil, nil, false, fmt.Errorf("row index '%s' is not a non-negative integer", k)
		}
		if prev, dup := keyOf[n]; dup {
			return nil, nil, false, fmt.Errorf("row indexes '%s' and '%s' name the same row", prev, k)
		}
		keyOf[n] = k

		cell, err := scalar(byIdx[k])
		if err != nil {
			return nil, nil, false, fmt.Errorf("row %s: %w", k, err)
		}
		labels[j] = n
		cells[j] = cell
	}
	return labels, cells, false, nil
}

// orderedObject decodes a JSON object keeping key order
func orderedObject(data []byte) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected a JSON object")
	}

	var keys []string
	values := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		if _, dup := values[key]; !dup {
			keys = append(keys, key)
		}
		values[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}

// scalar decodes one cell. Numbers stay json.Number until the column type
// is known.
func scalar(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	switch v.(type) {
	case nil, string, bool, json.Number:
		return v, nil
	default:
		return nil, fmt.Errorf("nested values are not supported")
	}
}

// buildColumns picks a type per column and converts cells to it. Mixed
// kinds fall back to string.
func buildColumns(names []string, cells [][]any) (*dataset.Dataset, error) {
	columns := make([]dataset.Column, len(names))
	for i, name := range names {
		typ := jsonType(cells[i])
		values := make([]any, len(cells[i]))
		for j, cell := range cells[i] {
			values[j] = convertCell(typ, cell)
		}
		columns[i] = dataset.Column{Name: name, Type: typ, Values: values}
	}
	return dataset.New(columns...)
}

func jsonType(cells []any) dataset.Type {
	kinds := map[string]bool{}
	allInt := true
	for _, c := range cells {
		switch v := c.(type) {
		case nil:
		case string:
			kinds["string"] = true
		case bool:
			kinds["bool"] = true
		case json.Number:
			kinds["number"] = true
			if _, err := v.Float64(); err != nil {
				// beyond float64 range: keep the column as text
				kinds["string"] = true
			}
			if _, err := v.Int64(); err != nil {
				allInt = false
			}
		}
	}

	switch {
	case len(kinds) != 1:
		return dataset.String
	case kinds["bool"]:
		return dataset.Bool
	case kinds["number"] && allInt:
		return dataset.Int64
	case kinds["number"]:
		return dataset.Float64
	default:
		return dataset.String
	}
}

func convertCell(typ dataset.Type, cell any) any {
	if cell == nil {
		return nil
	}
	switch typ {
	case dataset.Int64:
		n, _ := cell.(json.Number).Int64()
		return n
	case dataset.Float64:
		// jsonType only picks Float64 when every number parses
		f, _ := cell.(json.Number).Float64()
		return f
	case dataset.Bool:
		return cell.(bool)
	}
	switch v := cell.(type) {
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return v
	}
}
