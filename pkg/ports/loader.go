package ports

// GraphLoader defines how declarative graph definitions are retrieved.
// This allows the storage layer (filesystem, memory) to be decoupled.
type GraphLoader interface {
	// GetGraph retrieves the raw definition of a graph by ID.
	// It returns the raw bytes (which the definition parser will decode) or an error.
	GetGraph(id string) ([]byte, error)

	// ListGraphs returns the IDs of all available definitions.
	// This is used for introspection tools (e.g. 'arbor graph').
	ListGraphs() ([]string, error)
}
