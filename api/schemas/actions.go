// File: api/schemas/actions.go
package schemas

import "time"

// ActionType enumerates the semantically meaningful user interactions the
// recorder can emit. Every recorded action carries exactly one of these.
type ActionType string

const (
	ActionClick      ActionType = "click"
	ActionInput      ActionType = "input"
	ActionCheckbox   ActionType = "checkbox"
	ActionRadio      ActionType = "radio"
	ActionSelect     ActionType = "select"
	ActionSubmit     ActionType = "submit"
	ActionKeypress   ActionType = "keypress"
	ActionNavigate   ActionType = "navigate"
	ActionTabSwitch  ActionType = "tab-switch"
	ActionFileUpload ActionType = "file-upload"
)

// SelectorStrategy identifies one of the independent methods for locating a
// DOM element. Strategies are ranked by a reliability score, not by this enum.
type SelectorStrategy string

const (
	StrategyID           SelectorStrategy = "id"
	StrategyTestID       SelectorStrategy = "data-testid"
	StrategyAriaLabel    SelectorStrategy = "aria-label"
	StrategyRoleName     SelectorStrategy = "role-name"
	StrategyTextContains SelectorStrategy = "text-contains"
	StrategyCSS          SelectorStrategy = "css"
	StrategyXPath        SelectorStrategy = "xpath"
)

// SelectorCandidate is one way of finding an element, with a reliability
// score in the 50-95 range. Candidates are evaluated highest score first.
type SelectorCandidate struct {
	Strategy    SelectorStrategy `json:"strategy"`
	Selector    string           `json:"selector"`
	Score       int              `json:"score"`
	Description string           `json:"description,omitempty"`
}

// BoundingBox is the element's layout rectangle at capture time, in CSS pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ElementTarget describes a DOM element well enough to find it again later.
// The Selectors list is the primary mechanism; the remaining attributes feed
// the semantic and text fallbacks when every selector fails.
type ElementTarget struct {
	TagName       string              `json:"tagName"`
	ID            string              `json:"id,omitempty"`
	ClassName     string              `json:"className,omitempty"`
	Name          string              `json:"name,omitempty"`
	Type          string              `json:"type,omitempty"`
	Role          string              `json:"role,omitempty"`
	AriaLabel     string              `json:"ariaLabel,omitempty"`
	Text          string              `json:"text,omitempty"`
	Href          string              `json:"href,omitempty"`
	Box           *BoundingBox        `json:"box,omitempty"`
	IsVisible     bool                `json:"isVisible"`
	IsInteractive bool                `json:"isInteractive"`
	Selectors     []SelectorCandidate `json:"selectors,omitempty"`
}

// ValueKind discriminates the ActionValue union.
type ValueKind string

const (
	ValueNone      ValueKind = ""
	ValueText      ValueKind = "text"
	ValueChecked   ValueKind = "checked"
	ValueOption    ValueKind = "option"
	ValueKey       ValueKind = "key"
	ValueURL       ValueKind = "url"
	ValueTabSwitch ValueKind = "tab-switch"
	ValueFiles     ValueKind = "files"
)

// ActionValue is the action-specific payload, modelled as a tagged union over
// the action kind. Only the fields relevant to Kind are populated.
type ActionValue struct {
	Kind ValueKind `json:"kind"`

	// ValueText (input, submit field summaries).
	Text string `json:"text,omitempty"`

	// ValueChecked (checkbox, radio).
	Checked bool `json:"checked,omitempty"`

	// ValueOption (select).
	Option string `json:"option,omitempty"`

	// ValueKey (keypress).
	Key       string   `json:"key,omitempty"`
	Modifiers []string `json:"modifiers,omitempty"`

	// ValueURL (navigate).
	URL string `json:"url,omitempty"`

	// ValueTabSwitch (tab-switch).
	FromTabID int64 `json:"fromTabId,omitempty"`
	ToTabID   int64 `json:"toTabId,omitempty"`

	// ValueFiles (file-upload).
	Files []string `json:"files,omitempty"`
}

// ActionMetadata carries recording-time context that is useful for replay and
// for the agent but is not part of the action's identity.
type ActionMetadata struct {
	// State of the page immediately before the action fired.
	PageURL   string `json:"pageUrl,omitempty"`
	PageTitle string `json:"pageTitle,omitempty"`

	// What triggered the capture (e.g. "user", "shortcut", "synthetic").
	Trigger string `json:"trigger,omitempty"`

	// Keyboard shortcut descriptor for keypress actions, e.g. "Ctrl+S".
	Shortcut string `json:"shortcut,omitempty"`

	// Instrumentation script version that produced the raw event.
	ScriptVersion string `json:"scriptVersion,omitempty"`
}

// NetworkRequest is an observed request attributed to an action as a side
// effect. Timing is milliseconds elapsed between the action and the request.
type NetworkRequest struct {
	URL          string `json:"url"`
	Method       string `json:"method"`
	ResourceType string `json:"resourceType,omitempty"`
	Timing       int64  `json:"timing"`
}

// NetworkEffects summarises the meaningful network traffic attributed to an
// action within its effect window.
type NetworkEffects struct {
	RequestCount int              `json:"requestCount"`
	Requests     []NetworkRequest `json:"requests,omitempty"`
}

// ActionEffects is the verified side-effect summary attached to a finalized
// action. Summary is always non-empty once verification completes.
type ActionEffects struct {
	Network        NetworkEffects `json:"network"`
	FocusChanged   bool           `json:"focusChanged,omitempty"`
	FocusTarget    string         `json:"focusTarget,omitempty"`
	ScrollDistance float64        `json:"scrollDistance,omitempty"`
	Navigated      bool           `json:"navigated,omitempty"`
	NavigationURL  string         `json:"navigationUrl,omitempty"`
	Summary        string         `json:"summary"`
}

// RecordedAction is one verified user interaction. Actions are either pending
// (awaiting verification, never exposed to callers) or finalized with
// Verified=true. The authoritative list is ordered by Timestamp ascending.
type RecordedAction struct {
	Type      ActionType     `json:"type"`
	Timestamp int64          `json:"timestamp"` // monotonic milliseconds
	Target    *ElementTarget `json:"target,omitempty"`
	Value     ActionValue    `json:"value"`
	Metadata  ActionMetadata `json:"metadata"`

	TabID         int64  `json:"tabId,omitempty"`
	TabURL        string `json:"tabUrl,omitempty"`
	TabTitle      string `json:"tabTitle,omitempty"`
	WebContentsID int64  `json:"webContentsId,omitempty"`

	Verified         bool           `json:"verified"`
	VerificationTime int64          `json:"verificationTime,omitempty"` // ms between capture and finalize
	Effects          *ActionEffects `json:"effects,omitempty"`
	SnapshotPath     string         `json:"snapshotPath,omitempty"`
}

// TabInfo records one tab seen during a multi-tab recording.
type TabInfo struct {
	TabID int64  `json:"tabId"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// RecordingSession is the immutable record of a completed recording. It is
// created only at stop-and-save and never mutated afterwards.
type RecordingSession struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Actions     []RecordedAction `json:"actions"`
	CreatedAt   time.Time        `json:"createdAt"`
	Duration    int64            `json:"duration"` // milliseconds
	ActionCount int              `json:"actionCount"`
	URL         string           `json:"url,omitempty"`

	Tabs           []TabInfo `json:"tabs,omitempty"`
	TabSwitchCount int       `json:"tabSwitchCount,omitempty"`

	VideoPath   string `json:"videoPath,omitempty"`
	SnapshotDir string `json:"snapshotDir,omitempty"`
}

// SessionSummary is the listing projection of a RecordingSession.
type SessionSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url,omitempty"`
	ActionCount int       `json:"actionCount"`
	Duration    int64     `json:"duration"`
	CreatedAt   time.Time `json:"createdAt"`
}
