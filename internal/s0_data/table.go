package s0_data

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/wonny/earningsedge/internal/contracts"
)

// columnAliases lists, per canonical column, the accepted header names in priority order.
// Resolved once per file into a header rewrite; rows are then decoded by canonical name.
type columnAliases []columnAlias

type columnAlias struct {
	canonical string
	names     []string
}

// table is a CSV file whose header has been rewritten to canonical column names
type table struct {
	source  string
	header  []string
	payload []byte
}

// readTable reads a CSV file and rewrites its header using aliases.
// Columns matching no alias keep their (lower-cased) name; losing duplicates are blanked.
func readTable(path string, aliases columnAliases) (*table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return parseTable(path, data, aliases)
}

func parseTable(source string, data []byte, aliases columnAliases) (*table, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	headerEnd := bytes.IndexByte(data, '\n')
	headerLine := data
	body := []byte{}
	if headerEnd >= 0 {
		headerLine = data[:headerEnd]
		body = data[headerEnd+1:]
	}

	header, err := csv.NewReader(bytes.NewReader(headerLine)).Read()
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", source, err)
	}

	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	canonical := resolveHeader(header, aliases)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(canonical); err != nil {
		return nil, fmt.Errorf("%s: rewrite header: %w", source, err)
	}
	w.Flush()
	buf.Write(body)

	return &table{source: source, header: canonical, payload: buf.Bytes()}, nil
}

// resolveHeader maps each header cell to its canonical name
func resolveHeader(header []string, aliases columnAliases) []string {
	out := make([]string, len(header))
	copy(out, header)

	for _, alias := range aliases {
		canonical := alias.canonical
		chosen := -1
		for _, name := range alias.names {
			for i, col := range header {
				if col == name {
					chosen = i
					break
				}
			}
			if chosen >= 0 {
				break
			}
		}
		if chosen < 0 {
			continue
		}

		for i, col := range out {
			if i != chosen && col == canonical {
				out[i] = fmt.Sprintf("_shadowed_%d", i)
			}
		}
		out[chosen] = canonical
	}

	return out
}

// require fails fast with a SchemaError when any column is absent
func (t *table) require(columns ...string) error {
	present := make(map[string]struct{}, len(t.header))
	for _, col := range t.header {
		present[col] = struct{}{}
	}

	missing := make([]string, 0)
	for _, col := range columns {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}

	if len(missing) > 0 {
		return &contracts.SchemaError{Source: t.source, Missing: missing, Found: t.header}
	}
	return nil
}
