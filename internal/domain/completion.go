package domain

// CompletionRequest is a single upstream call. Messages are chronological and
// the last one is the turn the model answers.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
	// JSON asks the provider to constrain the reply to a JSON object.
	JSON bool
}
