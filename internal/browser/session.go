// File: internal/browser/session.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/voyantlabs/pagepilot/api/schemas"
	"github.com/voyantlabs/pagepilot/internal/config"
	"github.com/voyantlabs/pagepilot/internal/recorder"
	"github.com/voyantlabs/pagepilot/internal/resolver"
)

// ringCap bounds the console/network buffers kept for context snapshots.
const ringCap = 100

// RecorderSink is the event intake side of the action recorder. The session
// converts CDP traffic and instrumentation binding calls into these calls.
type RecorderSink interface {
	Capture(raw recorder.RawAction)
	CaptureNavigation(url string)
	ObserveNetworkRequest(url, method, resourceType string)
	ObserveFocusChange(tagName string)
	ObserveScroll(distance float64)
	NetworkIdle()
}

// instrumentationEvent is the envelope delivered over the CDP binding by the
// page-side script.
type instrumentationEvent struct {
	Kind           string              `json:"kind"`
	Action         *recorder.RawAction `json:"action,omitempty"`
	FocusTag       string              `json:"focusTag,omitempty"`
	ScrollDistance float64             `json:"scrollDistance,omitempty"`
}

// Session owns one Chrome page over CDP. It implements schemas.PageDriver,
// schemas.ContextExtractor and resolver.Prober, and it feeds an attached
// recorder sink. Exactly one actor (recorder or automation) meaningfully
// drives a session at a time.
type Session struct {
	logger      *zap.Logger
	cfg         config.BrowserConfig
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	resolver    *resolver.Resolver

	mu          sync.Mutex
	consoleLogs []schemas.ConsoleEntry
	netActivity []schemas.NetworkEntry
	sink        RecorderSink
	closed      bool
}

// Interface conformance.
var (
	_ schemas.PageDriver       = (*Session)(nil)
	_ schemas.ContextExtractor = (*Session)(nil)
	_ resolver.Prober          = (*Session)(nil)
)

// NewSession launches (or attaches to) a Chrome instance and returns a live
// session. Close must be called to release the browser.
func NewSession(parentCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	log := logger.Named("browser")

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if cfg.RemoteDebuggerURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(parentCtx, cfg.RemoteDebuggerURL)
	} else {
		opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		if !cfg.Headless {
			opts = append(opts, chromedp.Flag("headless", false))
		}
		if cfg.IgnoreTLSErrors {
			opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
		}
		if cfg.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(parentCtx, opts...)
	}

	ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf(format, args...))
	}))

	s := &Session{
		logger:      log,
		cfg:         cfg,
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}
	s.resolver = resolver.New(log, s)

	// Start the browser and enable the domains we rely on.
	err := chromedp.Run(ctx,
		network.Enable(),
		chromedp.ActionFunc(func(c context.Context) error {
			if err := page.Enable().Do(c); err != nil {
				return err
			}
			return page.SetLifecycleEventsEnabled(true).Do(c)
		}),
	)
	if err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	s.installListeners()
	return s, nil
}

// installListeners taps CDP events into the ring buffers and, when a recorder
// is attached, into its sink.
func (s *Session) installListeners() {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			s.handleRequest(e)
		case *page.EventLifecycleEvent:
			s.handleLifecycle(e)
		case *page.EventFrameNavigated:
			s.handleNavigated(e)
		case *cdpruntime.EventConsoleAPICalled:
			s.handleConsole(e)
		case *cdpruntime.EventBindingCalled:
			if e.Name == BindingName {
				s.handleBinding(e.Payload)
			}
		}
	})
}

func (s *Session) handleRequest(e *network.EventRequestWillBeSent) {
	entry := schemas.NetworkEntry{
		Method:       e.Request.Method,
		URL:          e.Request.URL,
		ResourceType: string(e.Type),
		Timestamp:    time.Now().UTC(),
	}

	s.mu.Lock()
	s.netActivity = append(s.netActivity, entry)
	if len(s.netActivity) > ringCap {
		s.netActivity = s.netActivity[len(s.netActivity)-ringCap:]
	}
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		sink.ObserveNetworkRequest(e.Request.URL, e.Request.Method, string(e.Type))
	}
}

func (s *Session) handleLifecycle(e *page.EventLifecycleEvent) {
	if e.Name != "networkIdle" {
		return
	}
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink.NetworkIdle()
	}
}

func (s *Session) handleNavigated(e *page.EventFrameNavigated) {
	// Only top-level navigations are recorded.
	if e.Frame == nil || e.Frame.ParentID != "" {
		return
	}
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink.CaptureNavigation(e.Frame.URL)
	}
}

func (s *Session) handleConsole(e *cdpruntime.EventConsoleAPICalled) {
	var text string
	for _, arg := range e.Args {
		if len(arg.Value) > 0 {
			if text != "" {
				text += " "
			}
			text += string(arg.Value)
		}
	}
	entry := schemas.ConsoleEntry{
		Level:     string(e.Type),
		Text:      text,
		Timestamp: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.consoleLogs = append(s.consoleLogs, entry)
	if len(s.consoleLogs) > ringCap {
		s.consoleLogs = s.consoleLogs[len(s.consoleLogs)-ringCap:]
	}
}

func (s *Session) handleBinding(payload string) {
	var event instrumentationEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		s.logger.Warn("Malformed instrumentation payload", zap.Error(err))
		return
	}

	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return
	}

	switch event.Kind {
	case "action":
		if event.Action != nil {
			sink.Capture(*event.Action)
		}
	case "focus":
		sink.ObserveFocusChange(event.FocusTag)
	case "scroll":
		sink.ObserveScroll(event.ScrollDistance)
	default:
		s.logger.Debug("Unknown instrumentation event kind", zap.String("kind", event.Kind))
	}
}

// AttachRecorder installs the instrumentation script and routes page events
// to the sink. Attach exactly one recorder per session.
func (s *Session) AttachRecorder(ctx context.Context, sink RecorderSink, opts ScriptOptions) error {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()

	script := InstrumentationScript(opts)
	err := s.run(ctx, s.cfg.ActionTimeout,
		cdpruntime.AddBinding(BindingName),
		chromedp.ActionFunc(func(c context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(c)
			return err
		}),
		// Install on the already-loaded document too.
		chromedp.Evaluate(script, nil),
	)
	if err != nil {
		return fmt.Errorf("failed to attach recorder instrumentation: %w", err)
	}
	s.logger.Info("Recorder instrumentation attached", zap.String("script_version", ScriptVersion))
	return nil
}

// DetachRecorder stops routing events to the recorder.
func (s *Session) DetachRecorder() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = nil
}

// CurrentTab reports the identity of the active page.
func (s *Session) CurrentTab(ctx context.Context) schemas.TabInfo {
	var url, title string
	_ = s.run(ctx, s.cfg.ActionTimeout, chromedp.Location(&url), chromedp.Title(&title))
	return schemas.TabInfo{TabID: 1, URL: url, Title: title}
}

// Resolver exposes the session-bound element resolver.
func (s *Session) Resolver() *resolver.Resolver {
	return s.resolver
}

// run executes chromedp actions on the session context with a timeout, while
// honoring caller cancellation.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if runCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("browser operation timed out after %v: %w", timeout, err)
		}
		return err
	}
	return nil
}

// Close shuts the browser down.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.allocCancel()
	s.logger.Info("Browser session closed")
}
