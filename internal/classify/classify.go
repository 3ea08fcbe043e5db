// Package classify maps a bucket total to an alert tier. It is pure: no
// state, no I/O, no rendering.
package classify

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"big-trades/internal/trade"
)

// Tier is one row of the threshold table.
type Tier struct {
	MinNotional decimal.Decimal `json:"minNotional"`
	Label       string          `json:"label"`
	Weight      int             `json:"weight"` // visual weight, see Emphasis
}

// Emphasis is a rendering hint handed to the alert sinks.
type Emphasis string

const (
	Plain     Emphasis = "plain"
	Highlight Emphasis = "highlight" // bold on a highlight background
	Blink     Emphasis = "blink"
)

// Result of a classification. Level 0 means suppressed; otherwise it is the
// 1-based index of the matched tier.
type Result struct {
	Level  int        `json:"level"`
	Label  string     `json:"label"`
	Weight int        `json:"weight"`
	Side   trade.Side `json:"side"`
}

func (r Result) Suppressed() bool { return r.Level == 0 }

// Emphasis maps the tier weight to a rendering hint. The first tier is
// rendered plain; emphasis starts at weight 2.
func (r Result) Emphasis() Emphasis {
	switch {
	case r.Weight >= 3:
		return Blink
	case r.Weight == 2:
		return Highlight
	}
	return Plain
}

// DefaultTiers follows the classic big-trade thresholds in USD.
func DefaultTiers() []Tier {
	return []Tier{
		{MinNotional: decimal.NewFromInt(15_000), Label: "normal", Weight: 1},
		{MinNotional: decimal.NewFromInt(100_000), Label: "large", Weight: 2},
		{MinNotional: decimal.NewFromInt(500_000), Label: "huge", Weight: 3},
	}
}

type Classifier struct {
	tiers []Tier
}

// New validates the table: at least one tier, positive strictly
// increasing minimums, non-empty labels.
func New(tiers []Tier) (*Classifier, error) {
	if len(tiers) == 0 {
		return nil, errors.New("at least one tier required")
	}
	cp := slices.Clone(tiers)
	for i, t := range cp {
		if strings.TrimSpace(t.Label) == "" {
			return nil, fmt.Errorf("tier %d: empty label", i)
		}
		if !t.MinNotional.IsPositive() {
			return nil, fmt.Errorf("tier %q: min notional must be > 0", t.Label)
		}
		if i > 0 && !t.MinNotional.GreaterThan(cp[i-1].MinNotional) {
			return nil, fmt.Errorf("tier %q: min notional must exceed %q", t.Label, cp[i-1].Label)
		}
	}
	return &Classifier{tiers: cp}, nil
}

// Tiers returns a copy of the table.
func (c *Classifier) Tiers() []Tier { return slices.Clone(c.tiers) }

// Classify picks the highest tier whose minimum is <= total.
func (c *Classifier) Classify(total decimal.Decimal, side trade.Side) Result {
	for i := len(c.tiers) - 1; i >= 0; i-- {
		t := c.tiers[i]
		if total.GreaterThanOrEqual(t.MinNotional) {
			return Result{Level: i + 1, Label: t.Label, Weight: t.Weight, Side: side}
		}
	}
	return Result{Side: side}
}
