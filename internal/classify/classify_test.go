package classify

import (
	"testing"

	"github.com/shopspring/decimal"

	"big-trades/internal/trade"
)

func tierTable(t *testing.T) *Classifier {
	t.Helper()
	c, err := New([]Tier{
		{MinNotional: decimal.NewFromInt(15000), Label: "normal", Weight: 1},
		{MinNotional: decimal.NewFromInt(100000), Label: "elevated", Weight: 2},
		{MinNotional: decimal.NewFromInt(500000), Label: "top", Weight: 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestTopTier(t *testing.T) {
	c := tierTable(t)
	r := c.Classify(decimal.NewFromInt(600000), trade.Buy)
	if r.Label != "top" || r.Level != 3 {
		t.Fatalf("got %+v want top", r)
	}
	if r.Emphasis() != Blink {
		t.Fatalf("top tier emphasis got %s", r.Emphasis())
	}
}

func TestNormalTier(t *testing.T) {
	c := tierTable(t)
	r := c.Classify(decimal.NewFromInt(17000), trade.Sell)
	if r.Label != "normal" || r.Side != trade.Sell {
		t.Fatalf("got %+v want normal/sell", r)
	}
}

func TestBoundariesAreInclusive(t *testing.T) {
	c := tierTable(t)
	cases := []struct {
		total string
		level int
	}{
		{"14999.99", 0},
		{"15000", 1},
		{"99999.999", 1},
		{"100000", 2},
		{"500000", 3},
	}
	for _, tc := range cases {
		if got := c.Classify(decimal.RequireFromString(tc.total), trade.Buy).Level; got != tc.level {
			t.Fatalf("total %s: level got %d want %d", tc.total, got, tc.level)
		}
	}
}

func TestZeroIsSuppressed(t *testing.T) {
	c := tierTable(t)
	for _, side := range []trade.Side{trade.Buy, trade.Sell} {
		r := c.Classify(decimal.Zero, side)
		if !r.Suppressed() {
			t.Fatalf("zero classified as %+v", r)
		}
	}
	if !c.Classify(decimal.NewFromInt(-1), trade.Buy).Suppressed() {
		t.Fatal("negative total must be suppressed")
	}
}

func TestMonotonic(t *testing.T) {
	c, err := New(DefaultTiers())
	if err != nil {
		t.Fatal(err)
	}
	prev := 0
	step := decimal.NewFromInt(2500)
	total := decimal.Zero
	for i := 0; i < 400; i++ {
		lvl := c.Classify(total, trade.Buy).Level
		if lvl < prev {
			t.Fatalf("level dropped from %d to %d at %s", prev, lvl, total)
		}
		prev = lvl
		total = total.Add(step)
	}
	if prev != 3 {
		t.Fatalf("never reached top tier, last level %d", prev)
	}
}

func TestNewRejectsBadTables(t *testing.T) {
	bad := map[string][]Tier{
		"empty":      nil,
		"zero min":   {{MinNotional: decimal.Zero, Label: "x"}},
		"no label":   {{MinNotional: decimal.NewFromInt(1)}},
		"unordered":  {{MinNotional: decimal.NewFromInt(10), Label: "a"}, {MinNotional: decimal.NewFromInt(5), Label: "b"}},
		"duplicated": {{MinNotional: decimal.NewFromInt(10), Label: "a"}, {MinNotional: decimal.NewFromInt(10), Label: "b"}},
	}
	for name, tiers := range bad {
		if _, err := New(tiers); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestTiersIsACopy(t *testing.T) {
	c, _ := New(DefaultTiers())
	tiers := c.Tiers()
	tiers[0].Label = "mutated"
	if c.Tiers()[0].Label != "normal" {
		t.Fatal("classifier table was aliased")
	}
}

func TestEmphasisStartsAtSecondTier(t *testing.T) {
	want := map[int]Emphasis{0: Plain, 1: Plain, 2: Highlight, 3: Blink, 5: Blink}
	for w, e := range want {
		if got := (Result{Level: 1, Weight: w}).Emphasis(); got != e {
			t.Errorf("weight %d: got %s want %s", w, got, e)
		}
	}
}
