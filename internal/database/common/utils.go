package common

import "fmt"

// QueryResult is a row set in column order plus the rows keyed by column.
type QueryResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// ExecResult reports what a mutation changed.
type ExecResult struct {
	RowsAffected int64 `json:"rows_affected"`
}

// FormatValue converts driver values into JSON-friendly ones.
func FormatValue(val any) any {
	if val == nil {
		return nil
	}

	if bytes, ok := val.([]byte); ok {
		str := string(bytes)
		for _, r := range str {
			if r < 32 && r != '\n' && r != '\r' && r != '\t' {
				return fmt.Sprintf("0x%x", bytes)
			}
		}
		return str
	}

	return val
}
