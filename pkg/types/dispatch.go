package types

import "encoding/json"

// Invocation is one tool call requested by the planner.
type Invocation struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Observation kinds.
const (
	ObservationQuestion = "question"
	ObservationResult   = "result"
	ObservationFailed   = "error"
	ObservationHardStop = "hard_stop"
)

type ObservationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Observation is one labeled entry of a session's history. Result and Error
// entries carry the invocation they answer.
type Observation struct {
	Kind         string            `json:"kind"`
	Step         int               `json:"step"`
	Text         string            `json:"text,omitempty"`
	InvocationID string            `json:"invocation_id,omitempty"`
	Name         string            `json:"name,omitempty"`
	Args         json.RawMessage   `json:"args,omitempty"`
	Result       json.RawMessage   `json:"result,omitempty"`
	Error        *ObservationError `json:"error,omitempty"`
}

type ParamSpec struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Required    bool     `json:"required,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Description string   `json:"description,omitempty"`
}

type OperationSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"params"`
	TTLSeconds  int         `json:"ttl_seconds"`
}

type PlannerRequest struct {
	Question           string          `json:"question"`
	ObservationHistory []Observation   `json:"observation_history"`
	OperationCatalog   []OperationSpec `json:"operation_catalog"`
}

type PlannerResponse struct {
	Invocations []Invocation `json:"invocations"`
	Done        bool         `json:"done"`
	Answer      string       `json:"answer,omitempty"`
}

// Session outcomes.
const (
	OutcomeAnswered  = "answered"
	OutcomeHardStop  = "hard_stop"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

type AskRequest struct {
	Question string `json:"question"`
}

type SessionResult struct {
	SessionID    string        `json:"session_id"`
	Question     string        `json:"question"`
	Answer       string        `json:"answer"`
	Outcome      string        `json:"outcome"`
	Steps        int           `json:"steps"`
	ToolsUsed    []string      `json:"tools_used"`
	Observations []Observation `json:"observations"`
	Unexecuted   []Invocation  `json:"unexecuted,omitempty"`
	Error        string        `json:"error,omitempty"`
}

type CatalogResponse struct {
	Operations []OperationSpec `json:"operations"`
	Count      int             `json:"count"`
}
