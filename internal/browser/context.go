// File: internal/browser/context.go
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/chromedp/chromedp"
	"golang.org/x/net/html"

	"github.com/voyantlabs/pagepilot/api/schemas"
)

// interactiveXPath selects the element classes the agent can act on.
const interactiveXPath = `//a[@href] | //button | //input | //select | //textarea | //*[@role='button' or @role='link' or @role='checkbox' or @role='radio' or @role='tab' or @role='menuitem'] | //*[@onclick]`

// GetContext assembles the pruned page snapshot: document metadata, the
// interactive-element inventory parsed from the live DOM, and the most recent
// console and network entries from the session ring buffers.
func (s *Session) GetContext(ctx context.Context, opts schemas.ContextOptions) (*schemas.PageContext, error) {
	var url, title, readyState, outerHTML string
	actions := []chromedp.Action{
		chromedp.Location(&url),
		chromedp.Title(&title),
		chromedp.Evaluate(`document.readyState`, &readyState),
	}
	if opts.IncludeElements {
		actions = append(actions, chromedp.OuterHTML("html", &outerHTML, chromedp.ByQuery))
	}
	if err := s.run(ctx, s.cfg.ActionTimeout, actions...); err != nil {
		return nil, fmt.Errorf("page context extraction failed: %w", err)
	}

	pc := &schemas.PageContext{
		Metadata: schemas.PageMetadata{URL: url, Title: title, ReadyState: readyState},
	}

	if opts.IncludeElements {
		elements, err := extractInteractiveElements(outerHTML, opts.MaxElements)
		if err != nil {
			return nil, err
		}
		pc.InteractiveElements = elements
	}

	if opts.IncludeConsole {
		pc.ConsoleLogs = s.recentConsole(opts.MaxConsole)
	}
	if opts.IncludeNetwork {
		pc.NetworkActivity = s.recentNetwork(opts.MaxNetwork)
	}
	return pc, nil
}

func (s *Session) recentConsole(max int) []schemas.ConsoleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tail(s.consoleLogs, max)
}

func (s *Session) recentNetwork(max int) []schemas.NetworkEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tail(s.netActivity, max)
}

func tail[T any](entries []T, max int) []T {
	if max > 0 && len(entries) > max {
		entries = entries[len(entries)-max:]
	}
	out := make([]T, len(entries))
	copy(out, entries)
	return out
}

// extractInteractiveElements parses the document and inventories actionable
// elements, capped at max. Hidden inputs are skipped; visibility of the rest
// cannot be judged from markup alone, so it is reported optimistically.
func extractInteractiveElements(outerHTML string, max int) ([]schemas.InteractiveElement, error) {
	doc, err := htmlquery.Parse(strings.NewReader(outerHTML))
	if err != nil {
		return nil, fmt.Errorf("document parse failed: %w", err)
	}

	nodes, err := htmlquery.QueryAll(doc, interactiveXPath)
	if err != nil {
		return nil, fmt.Errorf("interactive element query failed: %w", err)
	}

	elements := make([]schemas.InteractiveElement, 0, len(nodes))
	seen := make(map[string]struct{}, len(nodes))
	for _, node := range nodes {
		if max > 0 && len(elements) >= max {
			break
		}
		if attrValue(node, "type") == "hidden" {
			continue
		}
		selector := cssPathFor(node)
		if selector == "" {
			continue
		}
		if _, dup := seen[selector]; dup {
			continue
		}
		seen[selector] = struct{}{}

		elements = append(elements, schemas.InteractiveElement{
			Selector:  selector,
			TagName:   node.Data,
			Type:      attrValue(node, "type"),
			Name:      attrValue(node, "name"),
			Role:      attrValue(node, "role"),
			AriaLabel: attrValue(node, "aria-label"),
			Text:      truncate(strings.TrimSpace(htmlquery.InnerText(node)), 80),
			Visible:   true,
		})
	}
	return elements, nil
}

// cssPathFor builds a selector for a parsed node in the same dialect the
// instrumentation script emits: the nearest id anchors the path, otherwise
// positional tag steps up to the root.
func cssPathFor(node *html.Node) string {
	var parts []string
	for n := node; n != nil && n.Type == html.ElementNode && n.Data != "html"; n = n.Parent {
		part := n.Data
		if id := attrValue(n, "id"); id != "" {
			parts = append([]string{part + "#" + id}, parts...)
			return strings.Join(parts, " > ")
		}
		if idx := siblingIndex(n); idx > 1 {
			part += fmt.Sprintf(":nth-of-type(%d)", idx)
		}
		parts = append([]string{part}, parts...)
	}
	return strings.Join(parts, " > ")
}

// siblingIndex is the node's 1-based position among same-tag siblings.
func siblingIndex(node *html.Node) int {
	idx := 1
	for sib := node.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && sib.Data == node.Data {
			idx++
		}
	}
	return idx
}

func attrValue(node *html.Node, name string) string {
	for _, attr := range node.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
