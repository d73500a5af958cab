package interfaces

import "context"

// Completer is a text completion backend used by the enrichment engine.
// Implementations wrap a specific model provider.
type Completer interface {
	// Complete sends the prompt and returns the raw model response text.
	Complete(ctx context.Context, prompt string) (string, error)

	// ModelID identifies the backing model, e.g. "gemini-2.5-flash".
	ModelID() string
}
