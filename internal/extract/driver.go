package extract

import (
	"context"
)

// Driver opens page-automation sessions against one long-lived browser.
// Implementations must allow Open to be called by many runs in turn.
type Driver interface {
	Open(ctx context.Context) (Session, error)
}

// Session is a single browser tab. It is used by one extraction pass at a
// time and must be closed by that pass.
type Session interface {
	// Navigate loads url and waits for the document body.
	Navigate(ctx context.Context, url string) error
	// HTML returns the current document markup.
	HTML(ctx context.Context) (string, error)
	// Click clicks the first element matching a CSS selector.
	Click(ctx context.Context, selector string) error
	Close() error
}
