// File: internal/recorder/recorder.go
package recorder

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voyantlabs/pagepilot/api/schemas"
	"github.com/voyantlabs/pagepilot/internal/config"
)

// RawAction is the payload emitted by the page instrumentation script for one
// captured event, before verification.
type RawAction struct {
	Type      schemas.ActionType     `json:"type"`
	Timestamp int64                  `json:"timestamp"`
	Target    *schemas.ElementTarget `json:"target,omitempty"`
	Value     schemas.ActionValue    `json:"value"`
	Metadata  schemas.ActionMetadata `json:"metadata"`
}

// immediateTypes finalize at capture: waiting for async side effects adds no
// value for these. Navigation is self-evidently observable and tab switches
// are synthetic, so both are immediate too.
var immediateTypes = map[schemas.ActionType]bool{
	schemas.ActionKeypress:  true,
	schemas.ActionInput:     true,
	schemas.ActionCheckbox:  true,
	schemas.ActionRadio:     true,
	schemas.ActionSelect:    true,
	schemas.ActionNavigate:  true,
	schemas.ActionTabSwitch: true,
}

// Recorder turns raw page events into verified RecordedActions. Each instance
// owns its pending map and scheduler; there is no package-level state. One
// recorder can be switched between pages without losing pending
// verifications scheduled against the previous page.
type Recorder struct {
	logger *zap.Logger
	cfg    config.RecorderConfig
	clock  func() int64 // monotonic milliseconds
	sched  *scheduler

	mu          sync.Mutex
	pending     map[string]*schemas.RecordedAction
	finalized   []schemas.RecordedAction
	requests    []observedRequest
	focusEvents []observedFocus
	scrollEvents []observedScroll
	navEvents   []observedNavigation

	tab            schemas.TabInfo
	tabs           []schemas.TabInfo
	tabSwitchCount int

	startWall time.Time
	startURL  string
	stopped   bool

	stream chan schemas.RecordedAction
}

// Option customizes a Recorder.
type Option func(*Recorder)

// WithClock replaces the monotonic clock. Tests only.
func WithClock(clock func() int64) Option {
	return func(r *Recorder) { r.clock = clock }
}

// New creates a recorder. Call Start before feeding it events.
func New(logger *zap.Logger, cfg config.RecorderConfig, opts ...Option) *Recorder {
	if cfg.PendingDeadline <= 0 {
		cfg.PendingDeadline = 500 * time.Millisecond
	}
	if cfg.EffectWindow <= 0 {
		cfg.EffectWindow = 1500 * time.Millisecond
	}
	if cfg.ScrollSignificance <= 0 {
		cfg.ScrollSignificance = 200
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = 256
	}

	start := time.Now()
	r := &Recorder{
		logger:  logger.Named("recorder"),
		cfg:     cfg,
		clock:   func() int64 { return time.Since(start).Milliseconds() },
		sched:   newScheduler(),
		pending: make(map[string]*schemas.RecordedAction),
		stream:  make(chan schemas.RecordedAction, cfg.StreamBuffer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start marks the beginning of a recording on the given page.
func (r *Recorder) Start(url string, tab schemas.TabInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startWall = time.Now()
	r.startURL = url
	r.tab = tab
	r.tabs = append(r.tabs, tab)
	r.logger.Info("Recording started", zap.String("url", url), zap.Int64("tab_id", tab.TabID))
}

// Actions returns the stream of finalized actions. The channel is buffered;
// Drain remains the authoritative ordered view.
func (r *Recorder) Actions() <-chan schemas.RecordedAction {
	return r.stream
}

// Capture ingests one raw event from the page instrumentation. Immediate
// action types finalize at once; the rest go pending with a verification
// deadline.
func (r *Recorder) Capture(raw RawAction) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	if raw.Timestamp == 0 {
		// Events without a page-side timestamp are stamped at receipt so they
		// share the clock used for effect attribution.
		raw.Timestamp = r.clock()
	}

	action := schemas.RecordedAction{
		Type:          raw.Type,
		Timestamp:     raw.Timestamp,
		Target:        raw.Target,
		Value:         raw.Value,
		Metadata:      raw.Metadata,
		TabID:         r.tab.TabID,
		TabURL:        r.tab.URL,
		TabTitle:      r.tab.Title,
		WebContentsID: r.tab.TabID,
	}

	if immediateTypes[raw.Type] {
		r.finalizeLocked(&action, r.clock())
		r.mu.Unlock()
		return
	}

	key := pendingKey(raw.Type, raw.Timestamp)
	r.pending[key] = &action
	r.mu.Unlock()

	r.sched.Schedule(key, r.cfg.PendingDeadline, func() {
		r.verify(key)
	})
}

// CaptureNavigation records a navigation action, always immediately verified.
func (r *Recorder) CaptureNavigation(url string) {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.navEvents = append(r.navEvents, observedNavigation{at: now, url: url})
	action := schemas.RecordedAction{
		Type:      schemas.ActionNavigate,
		Timestamp: now,
		Value:     schemas.ActionValue{Kind: schemas.ValueURL, URL: url},
		Metadata:  schemas.ActionMetadata{Trigger: "navigation"},
		TabID:     r.tab.TabID,
		TabURL:    r.tab.URL,
		TabTitle:  r.tab.Title,
	}
	r.finalizeLocked(&action, now)
}

// SwitchPage redirects the recorder to another tab. Verifications pending
// against the previous tab keep their deadlines; a synthetic tab-switch
// action marks the boundary.
func (r *Recorder) SwitchPage(to schemas.TabInfo) {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	from := r.tab
	r.tab = to
	r.tabs = append(r.tabs, to)
	r.tabSwitchCount++

	action := schemas.RecordedAction{
		Type:      schemas.ActionTabSwitch,
		Timestamp: now,
		Value: schemas.ActionValue{
			Kind:      schemas.ValueTabSwitch,
			FromTabID: from.TabID,
			ToTabID:   to.TabID,
		},
		Metadata: schemas.ActionMetadata{Trigger: "synthetic"},
		TabID:    to.TabID,
		TabURL:   to.URL,
		TabTitle: to.Title,
	}
	r.finalizeLocked(&action, now)
	r.logger.Info("Recorder switched page",
		zap.Int64("from_tab", from.TabID), zap.Int64("to_tab", to.TabID))
}

// ObserveNetworkRequest feeds one request from the network tap.
func (r *Recorder) ObserveNetworkRequest(url, method, resourceType string) {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, observedRequest{
		at:           now,
		url:          url,
		method:       method,
		resourceType: resourceType,
	})
}

// ObserveFocusChange feeds a focus change; only meaningful targets count.
func (r *Recorder) ObserveFocusChange(tagName string) {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.focusEvents = append(r.focusEvents, observedFocus{at: now, tagName: tagName})
}

// ObserveScroll feeds an observed scroll distance in pixels.
func (r *Recorder) ObserveScroll(distance float64) {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrollEvents = append(r.scrollEvents, observedScroll{at: now, distance: distance})
}

// NetworkIdle is the page-level lifecycle signal: it proactively flushes all
// pending verifications ahead of their individual deadlines.
func (r *Recorder) NetworkIdle() {
	r.sched.Flush()
}

// verify finalizes one pending action by key, evaluating its effect window.
// Effect-detection errors degrade the summary; they never leave the action
// pending.
func (r *Recorder) verify(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	action, ok := r.pending[key]
	if !ok {
		return
	}
	delete(r.pending, key)

	now := r.clock()
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("Panic during effect detection, finalizing without effects",
					zap.Any("panic_value", rec), zap.String("key", key))
				action.Effects = &schemas.ActionEffects{Summary: noSignificantEffects}
			}
		}()
		action.Effects = r.computeEffects(action.Timestamp)
	}()

	r.finalizeLocked(action, now)
}

// finalizeLocked pushes a verified action to the output list and stream.
// Caller holds the lock.
func (r *Recorder) finalizeLocked(action *schemas.RecordedAction, now int64) {
	action.Verified = true
	if action.VerificationTime == 0 && now > action.Timestamp {
		action.VerificationTime = now - action.Timestamp
	}
	if action.Effects == nil {
		action.Effects = &schemas.ActionEffects{Summary: noSignificantEffects}
	}
	r.finalized = append(r.finalized, *action)

	select {
	case r.stream <- *action:
	default:
		r.logger.Warn("Action stream full, consumer lagging",
			zap.String("type", string(action.Type)))
	}
}

// Drain returns a copy of the finalized actions sorted by timestamp.
// Verification may finalize out of capture order; this recovers strict
// chronological order for callers.
func (r *Recorder) Drain() []schemas.RecordedAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedFinalizedLocked()
}

func (r *Recorder) sortedFinalizedLocked() []schemas.RecordedAction {
	out := make([]schemas.RecordedAction, len(r.finalized))
	copy(out, r.finalized)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

// Stop flushes outstanding verifications, closes the stream, and assembles
// the immutable RecordingSession.
func (r *Recorder) Stop(name, description string) *schemas.RecordingSession {
	r.sched.Flush()
	r.sched.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil
	}
	r.stopped = true

	// A capture can land between the flush above and this lock; the stopped
	// scheduler refused its deadline, so it is finalized here instead of
	// being dropped.
	if len(r.pending) > 0 {
		now := r.clock()
		for key, action := range r.pending {
			delete(r.pending, key)
			action.Effects = r.computeEffects(action.Timestamp)
			r.finalizeLocked(action, now)
		}
	}
	close(r.stream)

	actions := r.sortedFinalizedLocked()
	session := &schemas.RecordingSession{
		ID:             uuid.NewString(),
		Name:           name,
		Description:    description,
		Actions:        actions,
		CreatedAt:      time.Now().UTC(),
		Duration:       time.Since(r.startWall).Milliseconds(),
		ActionCount:    len(actions),
		URL:            r.startURL,
		Tabs:           r.tabs,
		TabSwitchCount: r.tabSwitchCount,
		SnapshotDir:    r.cfg.SnapshotDir,
	}
	r.logger.Info("Recording stopped",
		zap.String("session_id", session.ID),
		zap.Int("actions", session.ActionCount),
		zap.Int64("duration_ms", session.Duration))
	return session
}

func pendingKey(t schemas.ActionType, ts int64) string {
	return fmt.Sprintf("%s-%d", t, ts)
}
