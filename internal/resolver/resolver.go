// File: internal/resolver/resolver.go
package resolver

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voyantlabs/pagepilot/api/schemas"
)

// ErrNotFound is returned once every strategy and fallback is exhausted.
var ErrNotFound = errors.New("element not found")

// maxStrategyTimeout caps the per-strategy slice of the total budget.
const maxStrategyTimeout = 2 * time.Second

// NodeInfo is the read-only description of a probed DOM node.
type NodeInfo struct {
	TagName   string
	ID        string
	Name      string
	Role      string
	AriaLabel string
	Text      string
	Visible   bool
	Disabled  bool
	Width     float64
	Height    float64
}

// SemanticQuery is the attribute conjunction used by the semantic fallback.
// Empty fields are not constrained.
type SemanticQuery struct {
	TagName   string
	Role      string
	AriaLabel string
	Name      string
}

// Prober is the narrow, side-effect-free probing surface the resolver needs.
// Implementations return (nil, nil) when nothing matches; errors are reserved
// for transport failures.
type Prober interface {
	QuerySelector(ctx context.Context, selector string) (*NodeInfo, error)
	QueryXPath(ctx context.Context, expr string) (*NodeInfo, error)
	FindBySemantics(ctx context.Context, q SemanticQuery) (*NodeInfo, string, error)
	FindByText(ctx context.Context, tagName, substring string) (*NodeInfo, string, error)
}

// Match is a successfully located element together with the winning strategy.
type Match struct {
	Selector string
	Strategy schemas.SelectorStrategy
	Node     NodeInfo
}

// Resolver finds live DOM elements for recorded or described targets using
// multi-strategy fallback.
type Resolver struct {
	logger *zap.Logger
	prober Prober
}

// New creates a resolver bound to a prober.
func New(logger *zap.Logger, prober Prober) *Resolver {
	return &Resolver{
		logger: logger.Named("resolver"),
		prober: prober,
	}
}

// Locate tries the target's selector candidates highest score first, then the
// semantic fallback, then the text fallback, within the total timeout.
func (r *Resolver) Locate(ctx context.Context, target *schemas.ElementTarget, timeout time.Duration) (*Match, error) {
	if target == nil {
		return nil, errors.New("nil element target")
	}
	deadline := time.Now().Add(timeout)

	if len(target.Selectors) > 0 {
		match, err := r.trySelectors(ctx, target, deadline)
		if err != nil {
			return nil, err
		}
		if match != nil {
			return match, nil
		}
	}

	// Semantic fallback: attribute conjunction, first match wins.
	if remaining := time.Until(deadline); remaining > 0 || len(target.Selectors) == 0 {
		if match, err := r.trySemantic(ctx, target, deadline); err != nil {
			return nil, err
		} else if match != nil {
			return match, nil
		}
	}

	// Text fallback: substring containment scoped to the target's tag. This is
	// always attempted when text is present, even with an empty selector list.
	if target.Text != "" {
		node, selector, err := r.prober.FindByText(ctx, target.TagName, target.Text)
		if err != nil {
			return nil, err
		}
		if node != nil {
			r.logger.Debug("Located element via text fallback",
				zap.String("text", target.Text), zap.String("selector", selector))
			return &Match{Selector: selector, Strategy: schemas.StrategyTextContains, Node: *node}, nil
		}
	}

	return nil, ErrNotFound
}

// trySelectors walks the candidates in descending score order, giving each an
// equal slice of the total budget. Ties keep discovery order (stable sort).
func (r *Resolver) trySelectors(ctx context.Context, target *schemas.ElementTarget, deadline time.Time) (*Match, error) {
	candidates := make([]schemas.SelectorCandidate, len(target.Selectors))
	copy(candidates, target.Selectors)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	perStrategy := time.Until(deadline) / time.Duration(len(candidates))
	if perStrategy > maxStrategyTimeout {
		perStrategy = maxStrategyTimeout
	}

	for _, cand := range candidates {
		if time.Now().After(deadline) {
			break
		}
		subCtx, cancel := context.WithTimeout(ctx, perStrategy)
		node, err := r.probe(subCtx, cand)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Debug("Selector strategy probe failed",
				zap.String("strategy", string(cand.Strategy)),
				zap.String("selector", cand.Selector),
				zap.Error(err))
			continue
		}
		if node == nil {
			continue
		}
		if !crossCheck(node, target) {
			r.logger.Debug("Selector resolved but failed cross-check",
				zap.String("selector", cand.Selector),
				zap.String("got_tag", node.TagName),
				zap.String("want_tag", target.TagName))
			continue
		}
		return &Match{Selector: cand.Selector, Strategy: cand.Strategy, Node: *node}, nil
	}
	return nil, nil
}

func (r *Resolver) probe(ctx context.Context, cand schemas.SelectorCandidate) (*NodeInfo, error) {
	if cand.Strategy == schemas.StrategyXPath {
		return r.prober.QueryXPath(ctx, cand.Selector)
	}
	return r.prober.QuerySelector(ctx, cand.Selector)
}

func (r *Resolver) trySemantic(ctx context.Context, target *schemas.ElementTarget, deadline time.Time) (*Match, error) {
	q := SemanticQuery{
		TagName:   target.TagName,
		Role:      target.Role,
		AriaLabel: target.AriaLabel,
		Name:      target.Name,
	}
	if q.Role == "" && q.AriaLabel == "" && q.Name == "" {
		return nil, nil
	}
	node, selector, err := r.prober.FindBySemantics(ctx, q)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, nil
	}
	r.logger.Debug("Located element via semantic fallback", zap.String("selector", selector))
	return &Match{Selector: selector, Strategy: schemas.StrategyRoleName, Node: *node}, nil
}

// crossCheck confirms the resolved node plausibly is the recorded element:
// tag names must agree when recorded, and ids must agree when recorded.
func crossCheck(node *NodeInfo, target *schemas.ElementTarget) bool {
	if target.TagName != "" && !strings.EqualFold(node.TagName, target.TagName) {
		return false
	}
	if target.ID != "" && node.ID != target.ID {
		return false
	}
	return true
}

// VerifyClickable applies the optional pre-click heuristic: visible, non-zero
// size, not disabled. It only warns on failure so an imperfect heuristic
// never blocks automation.
func (r *Resolver) VerifyClickable(m *Match) bool {
	ok := m.Node.Visible && m.Node.Width > 0 && m.Node.Height > 0 && !m.Node.Disabled
	if !ok {
		r.logger.Warn("Element may not be clickable, proceeding anyway",
			zap.String("selector", m.Selector),
			zap.Bool("visible", m.Node.Visible),
			zap.Float64("width", m.Node.Width),
			zap.Float64("height", m.Node.Height),
			zap.Bool("disabled", m.Node.Disabled))
	}
	return ok
}
