// File: api/schemas/interfaces.go
package schemas

import (
	"context"
	"time"
)

// TypeOptions modifies a Type call.
type TypeOptions struct {
	// Clear empties the field before typing.
	Clear bool
}

// ScrollParams targets either an element (Selector) or a coordinate delta.
type ScrollParams struct {
	Selector string
	X        float64
	Y        float64
}

// PageDriver is the remote page driver: the primitive actions the automation
// engine executes against the live page. Every method returns a descriptive
// error on failure (element not found, timeout); there are no sentinel
// return values.
type PageDriver interface {
	Navigate(ctx context.Context, url string, waitForLoad bool) error
	Click(ctx context.Context, target *ElementTarget) error
	Type(ctx context.Context, selector, text string, opts TypeOptions) error
	SelectOption(ctx context.Context, selector, value string) error
	ToggleCheckbox(ctx context.Context, selector string, checked bool) error
	SelectRadio(ctx context.Context, selector string) error
	PressKey(ctx context.Context, key string) error
	Scroll(ctx context.Context, params ScrollParams) error
	WaitForElementVisible(ctx context.Context, selector string, timeout time.Duration) error
	GetText(ctx context.Context, selector string) (string, error)
	GetAttribute(ctx context.Context, selector, name string) (string, error)
}

// ContextExtractor produces the pruned, token-budgeted page snapshot.
type ContextExtractor interface {
	GetContext(ctx context.Context, opts ContextOptions) (*PageContext, error)
}

// SessionStore persists completed recording sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, session *RecordingSession) error
	GetSession(ctx context.Context, id string) (*RecordingSession, error)
	ListSessions(ctx context.Context) ([]SessionSummary, error)
	DeleteSession(ctx context.Context, id string) error
	Close()
}
