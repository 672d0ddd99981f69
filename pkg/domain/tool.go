package domain

// ToolCall is a structured request, embedded in a model message, to run a named tool.
// Arguments arrive either decoded (Args) or as the raw JSON text the model produced (RawArgs).
type ToolCall struct {
	ID      string         `json:"id" yaml:"id" mapstructure:"id"`
	Name    string         `json:"name" yaml:"name" mapstructure:"name"`
	Args    map[string]any `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
	RawArgs string         `json:"raw_args,omitempty" yaml:"raw_args,omitempty" mapstructure:"raw_args"`
}

// ToolResult is the outcome of one ToolCall.
type ToolResult struct {
	ID      string `json:"id"` // Must match the ToolCall.ID
	Name    string `json:"name"`
	Result  any    `json:"result,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Tool describes a tool available to models.
// This is used for generating schemas/prompts.
type Tool struct {
	Name        string         `json:"name" yaml:"name" mapstructure:"name"`
	Description string         `json:"description" yaml:"description" mapstructure:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty" mapstructure:"parameters"`
}
