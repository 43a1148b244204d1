package types

type SQLQueryArgs struct {
	Query   string `json:"query"`
	MaxRows *int   `json:"max_rows,omitempty"`
}

type SQLQueryResult struct {
	Columns     []string `json:"columns"`
	Rows        [][]any  `json:"rows"`
	RowCount    int      `json:"row_count"`
	HasMore     bool     `json:"has_more"`
	RowCap      int      `json:"row_cap"`
	ExecutedSQL string   `json:"executed_sql"`
}

// Audit outcomes.
const (
	AuditOK       = "ok"
	AuditRejected = "rejected"
	AuditTimeout  = "timeout"
	AuditError    = "error"
)

type AuditEntry struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	Query       string `json:"query"`
	Normalized  string `json:"normalized"`
	ExecutedSQL string `json:"executed_sql,omitempty"`
	Outcome     string `json:"outcome"`
	RowCount    int    `json:"row_count"`
	Error       string `json:"error,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}

type AuditListResponse struct {
	Entries []AuditEntry     `json:"entries"`
	Count   int              `json:"count"`
	Totals  map[string]int64 `json:"totals,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
