package tabular

// RawRowData represents a row of raw cell text keyed by normalized column header
type RawRowData map[string]string

// Table represents a complete CSV or XLSX sheet
type Table struct {
	Headers []string     // Column headers, lower-cased
	Rows    []RawRowData // Data rows
}

// HasColumn reports whether the table carries the given header
func (t *Table) HasColumn(name string) bool {
	for _, h := range t.Headers {
		if h == name {
			return true
		}
	}
	return false
}

// resolveColumn returns the first alias present in the table
func (t *Table) resolveColumn(aliases ...string) (string, bool) {
	for _, a := range aliases {
		if t.HasColumn(a) {
			return a, true
		}
	}
	return "", false
}
