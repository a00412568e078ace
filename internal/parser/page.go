package parser

import "context"

// Page is the capability contract the engine needs from a rendered page.
// The browser package provides the real implementation; tests substitute
// stubs. A Page is owned by exactly one parse call and must be closed on
// every exit path; Close is idempotent.
type Page interface {
	// Evaluate runs a script in the page and returns its JSON-serializable
	// result. Script failures come back as errors and are contained at the
	// strategy boundary.
	Evaluate(ctx context.Context, script string, args ...any) (any, error)

	// Content returns the current page HTML.
	Content(ctx context.Context) (string, error)

	// Reload re-navigates with the same stabilization contract as the
	// initial load.
	Reload(ctx context.Context) error

	// URL is the resolved URL after navigation and redirects.
	URL() string

	// Title returns the document title.
	Title(ctx context.Context) (string, error)

	Close() error
}

// Acquirer opens an isolated browsing session, navigates to a URL and waits
// for the load-stability signal before handing the page over.
type Acquirer interface {
	Acquire(ctx context.Context, url string) (Page, error)
}
