package domain

// Passage is a unit of retrieved context.
type Passage struct {
	ID     string  `json:"id" yaml:"id"`
	Text   string  `json:"text" yaml:"text"`
	Score  float64 `json:"score,omitempty" yaml:"score,omitempty"`
	Source string  `json:"source,omitempty" yaml:"source,omitempty"`
}

// NodeFailure is the record written to FieldLastError when a failing node
// is routed to an error-handling node instead of aborting the run.
type NodeFailure struct {
	NodeID  string `json:"node_id"`
	Message string `json:"message"`
	Step    int    `json:"step"`
}
