package sink

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"big-trades/internal/alert"
	"big-trades/internal/classify"
	"big-trades/internal/trade"
)

var million = decimal.NewFromInt(1_000_000)

// Renderer prints one styled line per alert, e.g.
//
//	** BUY BTC 12:00:01 $612,345
type Renderer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

func (r *Renderer) Emit(_ context.Context, a alert.Alert) error {
	line := Line(a)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := fmt.Fprintln(r.out, style(a).Sprint(line))
	return err
}

// Line is the unstyled alert text.
func Line(a alert.Alert) string {
	var b strings.Builder
	if stars := a.Tier.Level - 1; stars > 0 {
		b.WriteString(strings.Repeat("*", stars))
		b.WriteByte(' ')
	}
	sym := a.DisplaySymbol
	if sym == "" {
		sym = a.Symbol
	}
	fmt.Fprintf(&b, "%s %s %s %s", a.Side.Upper(), sym, a.BucketLabel, FormatUSD(a.Total))
	return b.String()
}

// FormatUSD renders a notional with thousands separators; millions are
// shortened to "$1.23m".
func FormatUSD(v decimal.Decimal) string {
	if v.Abs().GreaterThanOrEqual(million) {
		return "$" + groupThousands(v.Div(million).StringFixed(2)) + "m"
	}
	return "$" + groupThousands(v.StringFixed(0))
}

func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return sign + b.String()
}

func style(a alert.Alert) *color.Color {
	bg := color.BgGreen
	if a.Side == trade.Sell {
		bg = color.BgRed
	}
	attrs := []color.Attribute{color.FgWhite}
	switch a.Emphasis() {
	case classify.Blink:
		bg = highlight(a.Side)
		attrs = append(attrs, color.Bold, color.BlinkSlow)
	case classify.Highlight:
		bg = highlight(a.Side)
		attrs = append(attrs, color.Bold)
	}
	return color.New(append(attrs, bg)...)
}

func highlight(s trade.Side) color.Attribute {
	if s == trade.Sell {
		return color.BgMagenta
	}
	return color.BgBlue
}
