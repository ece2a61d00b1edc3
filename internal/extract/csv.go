package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/systmms/dsload/internal/dataset"
)

// DecodeCSV reads a CSV with a header row. Empty cells are missing values.
// Each column gets the narrowest type every non-empty cell parses as:
// int64, then float64, then bool, else string.
func DecodeCSV(data []byte) (*dataset.Dataset, error) {
	r := csv.NewReader(bytes.NewReader(data))

	header, err := r.Read()
	if err == io.EOF {
		return &dataset.Dataset{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	raw := make([][]string, len(header))
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		for i := range header {
			raw[i] = append(raw[i], record[i])
		}
	}

	columns := make([]dataset.Column, len(header))
	for i, name := range header {
		columns[i] = typedColumn(name, raw[i])
	}
	return dataset.New(columns...)
}

func typedColumn(name string, cells []string) dataset.Column {
	typ := inferType(cells)
	values := make([]any, len(cells))
	for i, cell := range cells {
		if cell == "" {
			continue
		}
		switch typ {
		case dataset.Int64:
			values[i], _ = strconv.ParseInt(cell, 10, 64)
		case dataset.Float64:
			values[i], _ = strconv.ParseFloat(cell, 64)
		case dataset.Bool:
			values[i] = strings.EqualFold(cell, "true")
		default:
			values[i] = cell
		}
	}
	return dataset.Column{Name: name, Type: typ, Values: values}
}

func inferType(cells []string) dataset.Type {
	isInt, isFloat, isBool := true, true, true
	seen := false
	for _, cell := range cells {
		if cell == "" {
			continue
		}
		seen = true
		if isInt {
			if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				isFloat = false
			}
		}
		if isBool && !strings.EqualFold(cell, "true") && !strings.EqualFold(cell, "false") {
			isBool = false
		}
	}

	switch {
	case !seen:
		return dataset.String
	case isInt:
		return dataset.Int64
	case isFloat:
		return dataset.Float64
	case isBool:
		return dataset.Bool
	default:
		return dataset.String
	}
}
