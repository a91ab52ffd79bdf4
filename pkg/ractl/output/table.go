package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/resource-allocator/ractl/pkg/ractl/client"
)

// WriteTable renders a record or a list of records. Columns are the union
// of all keys, id first and the rest sorted.
func WriteTable(w io.Writer, obj any) error {
	var rows []map[string]any
	switch val := obj.(type) {
	case nil:
		rows = nil
	case map[string]any:
		rows = []map[string]any{val}
	case []map[string]any:
		rows = val
	case []any:
		for _, item := range val {
			row, ok := item.(map[string]any)
			if !ok {
				return fmt.Errorf("table output needs records, got %T", item)
			}
			rows = append(rows, row)
		}
	default:
		converted, ok := asRecords(obj)
		if !ok {
			return fmt.Errorf("table output is not supported for %T", obj)
		}
		return WriteTable(w, converted)
	}

	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No results.")
		return err
	}

	columns := tableColumns(rows)
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = strings.ToUpper(col)
	}
	_, _ = fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			value, ok := row[col]
			if !ok {
				cells[i] = "-"
				continue
			}
			cells[i] = sanitizeCell(client.FieldString(value))
		}
		_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func tableColumns(rows []map[string]any) []string {
	seen := map[string]bool{}
	var columns []string
	for _, row := range rows {
		for key := range row {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}
	sort.Slice(columns, func(i, j int) bool {
		if columns[i] == "id" {
			return columns[j] != "id"
		}
		if columns[j] == "id" {
			return false
		}
		return columns[i] < columns[j]
	})
	return columns
}

func sanitizeCell(s string) string {
	s = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(s)
	if s == "" {
		return "-"
	}
	return s
}

// asRecords converts structs and slices of structs through their JSON form.
func asRecords(obj any) (any, bool) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, false
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var decoded any
	if err := decoder.Decode(&decoded); err != nil {
		return nil, false
	}
	switch decoded.(type) {
	case map[string]any, []any:
		return decoded, true
	}
	return nil, false
}
