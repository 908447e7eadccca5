// File: internal/browser/driver.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/voyantlabs/pagepilot/api/schemas"
)

// Navigate drives the page to url. With waitForLoad the call blocks until the
// load event fires; without it the navigation is fired and forgotten.
func (s *Session) Navigate(ctx context.Context, url string, waitForLoad bool) error {
	s.logger.Info("Navigating", zap.String("url", url), zap.Bool("wait_for_load", waitForLoad))

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if waitForLoad {
		actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	}
	if err := s.run(ctx, s.cfg.NavigationTimeout, actions...); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Click resolves the target through the multi-strategy resolver and clicks the
// winning selector. A failed clickability check logs a warning but does not
// block the click.
func (s *Session) Click(ctx context.Context, target *schemas.ElementTarget) error {
	match, err := s.resolver.Locate(ctx, target, s.cfg.ResolveTimeout)
	if err != nil {
		return fmt.Errorf("click target resolution failed: %w", err)
	}
	s.resolver.VerifyClickable(match)

	var action chromedp.Action
	if match.Strategy == schemas.StrategyXPath {
		action = chromedp.Click(match.Selector, chromedp.BySearch)
	} else {
		action = chromedp.Click(match.Selector, chromedp.ByQuery)
	}
	if err := s.run(ctx, s.cfg.ActionTimeout, action); err != nil {
		return fmt.Errorf("click on %q failed: %w", match.Selector, err)
	}
	s.logger.Debug("Clicked element",
		zap.String("selector", match.Selector),
		zap.String("strategy", string(match.Strategy)))
	return nil
}

// Type sends text into the field addressed by selector, optionally clearing
// the existing value first.
func (s *Session) Type(ctx context.Context, selector, text string, opts schemas.TypeOptions) error {
	actions := []chromedp.Action{chromedp.WaitVisible(selector, chromedp.ByQuery)}
	if opts.Clear {
		actions = append(actions, chromedp.Clear(selector, chromedp.ByQuery))
	}
	actions = append(actions, chromedp.SendKeys(selector, text, chromedp.ByQuery))
	if err := s.run(ctx, s.cfg.ActionTimeout, actions...); err != nil {
		return fmt.Errorf("typing into %q failed: %w", selector, err)
	}
	return nil
}

// SelectOption picks the option with the given value from a select element
// and fires the change event the page expects.
func (s *Session) SelectOption(ctx context.Context, selector, value string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return 'not-found';
		el.value = %q;
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return 'ok';
	})()`, selector, value)

	var result string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(script, &result)); err != nil {
		return fmt.Errorf("selecting option %q in %q failed: %w", value, selector, err)
	}
	if result == "not-found" {
		return fmt.Errorf("select element %q not found", selector)
	}
	return nil
}

// ToggleCheckbox sets a checkbox to the desired state. Already-correct state
// is a no-op so replays are idempotent.
func (s *Session) ToggleCheckbox(ctx context.Context, selector string, checked bool) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return 'not-found';
		if (el.checked !== %t) { el.click(); }
		return 'ok';
	})()`, selector, checked)

	var result string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(script, &result)); err != nil {
		return fmt.Errorf("toggling checkbox %q failed: %w", selector, err)
	}
	if result == "not-found" {
		return fmt.Errorf("checkbox %q not found", selector)
	}
	return nil
}

// SelectRadio selects a radio button. Clicking an already-selected radio is
// harmless, so no state check is needed.
func (s *Session) SelectRadio(ctx context.Context, selector string) error {
	err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("selecting radio %q failed: %w", selector, err)
	}
	return nil
}

// PressKey sends a key chord to the focused element. Named keys (Enter,
// Escape, Tab, arrows) map to their control runes; anything else is sent
// literally.
func (s *Session) PressKey(ctx context.Context, key string) error {
	seq, ok := namedKeys[key]
	if !ok {
		seq = key
	}
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.KeyEvent(seq)); err != nil {
		return fmt.Errorf("pressing key %q failed: %w", key, err)
	}
	return nil
}

var namedKeys = map[string]string{
	"Enter":      kb.Enter,
	"Escape":     kb.Escape,
	"Tab":        kb.Tab,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Home":       kb.Home,
	"End":        kb.End,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
}

// Scroll either brings an element into view (Selector set) or scrolls the
// window by a pixel delta.
func (s *Session) Scroll(ctx context.Context, params schemas.ScrollParams) error {
	if params.Selector != "" {
		err := s.run(ctx, s.cfg.ActionTimeout, chromedp.ScrollIntoView(params.Selector, chromedp.ByQuery))
		if err != nil {
			return fmt.Errorf("scrolling %q into view failed: %w", params.Selector, err)
		}
		return nil
	}
	script := fmt.Sprintf(`window.scrollBy(%f, %f)`, params.X, params.Y)
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("scroll by (%.0f, %.0f) failed: %w", params.X, params.Y, err)
	}
	return nil
}

// WaitForElementVisible blocks until the element is visible or the timeout
// elapses.
func (s *Session) WaitForElementVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.cfg.ActionTimeout
	}
	if err := s.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("element %q did not become visible within %v: %w", selector, timeout, err)
	}
	return nil
}

// GetText returns the element's trimmed inner text.
func (s *Session) GetText(ctx context.Context, selector string) (string, error) {
	var text string
	err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.Text(selector, &text, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("reading text of %q failed: %w", selector, err)
	}
	return text, nil
}

// GetAttribute returns the named attribute of the element, or an error when
// the attribute is absent.
func (s *Session) GetAttribute(ctx context.Context, selector, name string) (string, error) {
	var value string
	var ok bool
	err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.AttributeValue(selector, name, &value, &ok, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("reading attribute %q of %q failed: %w", name, selector, err)
	}
	if !ok {
		return "", fmt.Errorf("element %q has no attribute %q", selector, name)
	}
	return value, nil
}
