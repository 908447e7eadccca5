// File: api/schemas/browser.go
package schemas

import "time"

// PageMetadata is the lightweight identity of the current document.
type PageMetadata struct {
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	ReadyState string `json:"readyState,omitempty"`
}

// InteractiveElement is one entry of the pruned element inventory handed to
// the agent as ground truth. Selector is always resolvable on the live page.
type InteractiveElement struct {
	Selector  string `json:"selector"`
	TagName   string `json:"tagName"`
	Type      string `json:"type,omitempty"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role,omitempty"`
	AriaLabel string `json:"ariaLabel,omitempty"`
	Text      string `json:"text,omitempty"`
	Visible   bool   `json:"visible"`
}

// ConsoleEntry is one captured console message.
type ConsoleEntry struct {
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NetworkEntry is one captured request, independent of recorder attribution.
type NetworkEntry struct {
	Method       string    `json:"method"`
	URL          string    `json:"url"`
	ResourceType string    `json:"resourceType,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// PageContext is the token-budgeted page snapshot folded into the agent's
// conversation after every iteration.
type PageContext struct {
	Metadata            PageMetadata         `json:"metadata"`
	InteractiveElements []InteractiveElement `json:"interactiveElements,omitempty"`
	ConsoleLogs         []ConsoleEntry       `json:"consoleLogs,omitempty"`
	NetworkActivity     []NetworkEntry       `json:"networkActivity,omitempty"`
}

// ContextOptions caps and toggles each PageContext category.
type ContextOptions struct {
	IncludeElements bool `json:"includeElements"`
	IncludeConsole  bool `json:"includeConsole"`
	IncludeNetwork  bool `json:"includeNetwork"`
	MaxElements     int  `json:"maxElements,omitempty"`
	MaxConsole      int  `json:"maxConsole,omitempty"`
	MaxNetwork      int  `json:"maxNetwork,omitempty"`
}

// DefaultContextOptions returns the caps used when the caller does not care.
func DefaultContextOptions() ContextOptions {
	return ContextOptions{
		IncludeElements: true,
		IncludeConsole:  true,
		IncludeNetwork:  false,
		MaxElements:     40,
		MaxConsole:      10,
		MaxNetwork:      15,
	}
}
