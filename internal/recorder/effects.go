// File: internal/recorder/effects.go
package recorder

import (
	"fmt"
	"strings"

	"github.com/voyantlabs/pagepilot/api/schemas"
)

// noSignificantEffects is the degraded summary for actions whose verification
// window produced nothing worth reporting.
const noSignificantEffects = "no significant effects detected"

// noiseURLFragments matches analytics/tracking/ping traffic that should never
// count as an action's side effect.
var noiseURLFragments = []string{
	"google-analytics.com",
	"googletagmanager.com",
	"doubleclick.net",
	"facebook.com/tr",
	"segment.io",
	"sentry.io",
	"hotjar.com",
	"mixpanel.com",
	"amplitude.com",
	"/analytics",
	"/telemetry",
	"/beacon",
	"/collect",
	"/ping",
}

// noiseResourceTypes excludes request types that are page furniture rather
// than action consequences.
var noiseResourceTypes = map[string]bool{
	"image":      true,
	"font":       true,
	"stylesheet": true,
	"media":      true,
	"ping":       true,
}

// isNoiseRequest reports whether a request is analytics/asset noise.
func isNoiseRequest(url, resourceType string) bool {
	if noiseResourceTypes[strings.ToLower(resourceType)] {
		return true
	}
	lower := strings.ToLower(url)
	for _, fragment := range noiseURLFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// meaningfulFocusTags are the elements whose focus gain signals an action
// consequence. body/html focus is browser default behavior, not a signal.
var meaningfulFocusTags = map[string]bool{
	"input":    true,
	"textarea": true,
	"select":   true,
	"button":   true,
}

func isMeaningfulFocus(tagName string) bool {
	return meaningfulFocusTags[strings.ToLower(tagName)]
}

// observedRequest is a network request seen by the tap, stamped with the
// recorder's monotonic clock.
type observedRequest struct {
	at           int64
	url          string
	method       string
	resourceType string
}

type observedFocus struct {
	at      int64
	tagName string
}

type observedScroll struct {
	at       int64
	distance float64
}

type observedNavigation struct {
	at  int64
	url string
}

// computeEffects summarises the side effects observed inside the action's
// effect window [ts, ts+window]. Caller holds the recorder lock.
func (r *Recorder) computeEffects(ts int64) *schemas.ActionEffects {
	effects := &schemas.ActionEffects{}
	windowEnd := ts + r.cfg.EffectWindow.Milliseconds()
	var parts []string

	for _, req := range r.requests {
		if req.at < ts || req.at > windowEnd {
			continue
		}
		if isNoiseRequest(req.url, req.resourceType) {
			continue
		}
		effects.Network.Requests = append(effects.Network.Requests, schemas.NetworkRequest{
			URL:          req.url,
			Method:       req.method,
			ResourceType: req.resourceType,
			Timing:       req.at - ts,
		})
	}
	effects.Network.RequestCount = len(effects.Network.Requests)
	if effects.Network.RequestCount > 0 {
		parts = append(parts, fmt.Sprintf("%d network request(s)", effects.Network.RequestCount))
	}

	for _, focus := range r.focusEvents {
		if focus.at < ts || focus.at > windowEnd {
			continue
		}
		if isMeaningfulFocus(focus.tagName) {
			effects.FocusChanged = true
			effects.FocusTarget = strings.ToLower(focus.tagName)
		}
	}
	if effects.FocusChanged {
		parts = append(parts, fmt.Sprintf("focus moved to %s", effects.FocusTarget))
	}

	var scrolled float64
	for _, scroll := range r.scrollEvents {
		if scroll.at < ts || scroll.at > windowEnd {
			continue
		}
		scrolled += scroll.distance
	}
	if scrolled >= r.cfg.ScrollSignificance {
		effects.ScrollDistance = scrolled
		parts = append(parts, fmt.Sprintf("scrolled %.0fpx", scrolled))
	}

	for _, nav := range r.navEvents {
		if nav.at < ts || nav.at > windowEnd {
			continue
		}
		effects.Navigated = true
		effects.NavigationURL = nav.url
	}
	if effects.Navigated {
		parts = append(parts, fmt.Sprintf("navigated to %s", effects.NavigationURL))
	}

	if len(parts) == 0 {
		effects.Summary = noSignificantEffects
	} else {
		effects.Summary = strings.Join(parts, "; ")
	}
	return effects
}
