package ir

// Version constants for the plan schema and the embedder.
const (
	// PlanVersion is the module image schema version.
	PlanVersion = "1"

	// EmbedderVersion is the nopia embedder version.
	EmbedderVersion = "0.1.0"
)
