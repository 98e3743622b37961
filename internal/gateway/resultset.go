package gateway

// ResultSet is a forward-only cursor over the rows of one query execution.
// It is finite and cannot be restarted; callers that need the data twice
// must collect it.
type ResultSet struct {
	id   string
	rows []any
	idx  int
}

// ID returns the execution id assigned by the gateway.
func (rs *ResultSet) ID() string { return rs.id }

// Len returns the total number of rows in the set.
func (rs *ResultSet) Len() int { return len(rs.rows) }

// Next advances the cursor. It returns false once the set is exhausted.
func (rs *ResultSet) Next() bool {
	if rs.idx >= len(rs.rows) {
		return false
	}
	rs.idx++
	return true
}

// Value returns the current row. Valid only after a true Next.
func (rs *ResultSet) Value() any {
	return rs.rows[rs.idx-1]
}

// Collect drains the remaining rows into a slice.
func (rs *ResultSet) Collect() []any {
	out := make([]any, 0, len(rs.rows)-rs.idx)
	for rs.Next() {
		out = append(out, rs.Value())
	}
	return out
}
