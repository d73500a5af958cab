package interfaces

import "context"

// PageFetcher retrieves a document from a URL using a rendered browser
// session so that consent interstitials and script-driven redirects are
// resolved before the payload is captured.
type PageFetcher interface {
	// Fetch navigates to url and returns the final document bytes.
	// Implementations must respect ctx cancellation and deadlines.
	Fetch(ctx context.Context, url string) ([]byte, error)

	// Close releases the underlying browser resources.
	Close() error
}
