// File: internal/browser/prober.go
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"

	"github.com/voyantlabs/pagepilot/internal/resolver"
)

var probeJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// probeResult is the wire shape returned by the in-page probe functions.
// Found=false distinguishes "no match" from a transport failure.
type probeResult struct {
	Found    bool    `json:"found"`
	Selector string  `json:"selector,omitempty"`
	TagName  string  `json:"tagName"`
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Role     string  `json:"role"`
	AriaLbl  string  `json:"ariaLabel"`
	Text     string  `json:"text"`
	Visible  bool    `json:"visible"`
	Disabled bool    `json:"disabled"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

func (p *probeResult) node() *resolver.NodeInfo {
	if !p.Found {
		return nil
	}
	return &resolver.NodeInfo{
		TagName:   p.TagName,
		ID:        p.ID,
		Name:      p.Name,
		Role:      p.Role,
		AriaLabel: p.AriaLbl,
		Text:      p.Text,
		Visible:   p.Visible,
		Disabled:  p.Disabled,
		Width:     p.Width,
		Height:    p.Height,
	}
}

// describeNodeJS serializes a live element into a probeResult. Shared by every
// probe expression below.
const describeNodeJS = `function __pp_describe(el) {
	if (!el) return { found: false };
	const rect = el.getBoundingClientRect();
	const style = window.getComputedStyle(el);
	return {
		found: true,
		selector: '',
		tagName: el.tagName ? el.tagName.toLowerCase() : '',
		id: el.id || '',
		name: el.getAttribute('name') || '',
		role: el.getAttribute('role') || '',
		ariaLabel: el.getAttribute('aria-label') || '',
		text: (el.innerText || '').trim().slice(0, 200),
		visible: rect.width > 0 && rect.height > 0 &&
			style.visibility !== 'hidden' && style.display !== 'none',
		disabled: !!el.disabled,
		width: rect.width,
		height: rect.height
	};
}`

// QuerySelector probes one CSS selector. (nil, nil) means no match.
func (s *Session) QuerySelector(ctx context.Context, selector string) (*resolver.NodeInfo, error) {
	expr := fmt.Sprintf(`(() => { %s
		return __pp_describe(document.querySelector(%q));
	})()`, describeNodeJS, selector)

	res, err := s.evaluateProbe(ctx, expr)
	if err != nil {
		return nil, err
	}
	return res.node(), nil
}

// QueryXPath probes one XPath expression. (nil, nil) means no match.
func (s *Session) QueryXPath(ctx context.Context, xpath string) (*resolver.NodeInfo, error) {
	expr := fmt.Sprintf(`(() => { %s
		const r = document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null);
		return __pp_describe(r.singleNodeValue);
	})()`, describeNodeJS, xpath)

	res, err := s.evaluateProbe(ctx, expr)
	if err != nil {
		return nil, err
	}
	return res.node(), nil
}

// FindBySemantics scans candidate elements for the attribute conjunction: tag
// name, role, aria-label and name must all agree where specified. The first
// match wins; the returned selector is a best-effort CSS path for the node.
func (s *Session) FindBySemantics(ctx context.Context, q resolver.SemanticQuery) (*resolver.NodeInfo, string, error) {
	query, err := probeJSON.MarshalToString(map[string]string{
		"tagName":   strings.ToLower(q.TagName),
		"role":      q.Role,
		"ariaLabel": q.AriaLabel,
		"name":      q.Name,
	})
	if err != nil {
		return nil, "", err
	}

	expr := fmt.Sprintf(`(() => { %s
		const q = %s;
		const scope = q.tagName ? q.tagName : '*';
		for (const el of document.querySelectorAll(scope)) {
			if (q.role && el.getAttribute('role') !== q.role) continue;
			if (q.ariaLabel && el.getAttribute('aria-label') !== q.ariaLabel) continue;
			if (q.name && el.getAttribute('name') !== q.name) continue;
			const d = __pp_describe(el);
			d.selector = __pp_cssPath(el);
			return d;
		}
		return { found: false };
	})()`, describeNodeJS+"\n"+cssPathJS, query)

	res, err := s.evaluateProbe(ctx, expr)
	if err != nil {
		return nil, "", err
	}
	return res.node(), res.Selector, nil
}

// FindByText scans for an element whose visible text contains substring,
// scoped to tagName when given. Shorter-text matches are preferred so the
// tightest enclosing element wins over its containers.
func (s *Session) FindByText(ctx context.Context, tagName, substring string) (*resolver.NodeInfo, string, error) {
	expr := fmt.Sprintf(`(() => { %s
		const scope = %q || '*';
		const needle = %q;
		let best = null;
		for (const el of document.querySelectorAll(scope)) {
			const text = (el.innerText || '').trim();
			if (!text || !text.includes(needle)) continue;
			if (!best || text.length < (best.innerText || '').trim().length) best = el;
		}
		if (!best) return { found: false };
		const d = __pp_describe(best);
		d.selector = __pp_cssPath(best);
		return d;
	})()`, describeNodeJS+"\n"+cssPathJS, strings.ToLower(tagName), substring)

	res, err := s.evaluateProbe(ctx, expr)
	if err != nil {
		return nil, "", err
	}
	return res.node(), res.Selector, nil
}

// cssPathJS mirrors the instrumentation script's path builder so fallback
// matches report selectors in the same dialect as recorded candidates.
const cssPathJS = `function __pp_cssPath(el) {
	const parts = [];
	while (el && el.nodeType === Node.ELEMENT_NODE && el.tagName !== 'HTML') {
		let part = el.tagName.toLowerCase();
		if (el.id) { parts.unshift(part + '#' + el.id); break; }
		let idx = 1, sib = el;
		while ((sib = sib.previousElementSibling)) {
			if (sib.tagName === el.tagName) idx++;
		}
		if (idx > 1) part += ':nth-of-type(' + idx + ')';
		parts.unshift(part);
		el = el.parentElement;
	}
	return parts.join(' > ');
}`

func (s *Session) evaluateProbe(ctx context.Context, expr string) (*probeResult, error) {
	var raw []byte
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, chromedp.Evaluate(expr, &raw))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("probe evaluation failed: %w", err)
	}

	var res probeResult
	if err := probeJSON.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("probe result decode failed: %w", err)
	}
	return &res, nil
}
