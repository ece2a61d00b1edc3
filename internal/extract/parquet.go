package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/systmms/dsload/internal/dataset"
)

const parquetBatchSize = 256

// DecodeParquet reads a flat parquet file. Every top-level field must be a
// non-repeated leaf; nulls become missing values.
func DecodeParquet(data []byte) (*dataset.Dataset, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid parquet file: %w", err)
	}

	fields := f.Schema().Fields()
	columns := make([]dataset.Column, len(fields))
	for i, field := range fields {
		if !field.Leaf() || field.Repeated() {
			return nil, fmt.Errorf("parquet column '%s' is nested or repeated", field.Name())
		}
		columns[i] = dataset.Column{
			Name:   field.Name(),
			Type:   parquetType(field.Type().Kind()),
			Values: make([]any, 0, f.NumRows()),
		}
	}

	buf := make([]parquet.Row, parquetBatchSize)
	for _, rg := range f.RowGroups() {
		if err := readRowGroup(rg, buf, columns); err != nil {
			return nil, err
		}
	}

	return dataset.New(columns...)
}

func readRowGroup(rg parquet.RowGroup, buf []parquet.Row, columns []dataset.Column) error {
	rows := rg.Rows()
	defer rows.Close()

	for {
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			cells := make([]any, len(columns))
			for _, v := range row {
				idx := v.Column()
				if idx < 0 || idx >= len(columns) {
					continue
				}
				cells[idx] = parquetValue(v)
			}
			for i := range columns {
				columns[i].Values = append(columns[i].Values, cells[i])
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read parquet rows: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}

func parquetType(kind parquet.Kind) dataset.Type {
	switch kind {
	case parquet.Boolean:
		return dataset.Bool
	case parquet.Int32, parquet.Int64:
		return dataset.Int64
	case parquet.Float, parquet.Double:
		return dataset.Float64
	default:
		return dataset.String
	}
}

func parquetValue(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}
