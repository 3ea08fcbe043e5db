package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"big-trades/internal/trade"
)

// CSVHeader is the trade log's column order. Downstream readers rely on it,
// so columns are only ever appended.
var CSVHeader = []string{
	"trade_time",
	"symbol",
	"agg_trade_id",
	"price",
	"quantity",
	"usd_size",
	"is_buyer_maker",
}

// CSVLog appends one row per trade to a CSV file. The header is written
// only when the file is created.
type CSVLog struct {
	mu  sync.Mutex
	f   *os.File
	w   *csv.Writer
	loc *time.Location
}

func OpenCSVLog(path string, loc *time.Location) (*CSVLog, error) {
	if loc == nil {
		loc = time.UTC
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, fs.ModePerm); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	_, statErr := os.Stat(path)
	fresh := errors.Is(statErr, fs.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	l := &CSVLog{f: f, w: csv.NewWriter(f), loc: loc}
	if fresh {
		if err := l.writeRow(CSVHeader); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return l, nil
}

// Row renders ev in CSVHeader order.
func (l *CSVLog) Row(ev trade.Event) []string {
	return []string{
		ev.TradeTime.In(l.loc).Format("2006-01-02 15:04:05.000Z07:00"),
		ev.Symbol,
		strconv.FormatInt(ev.SequenceID, 10),
		ev.Price.String(),
		ev.Quantity.String(),
		ev.Notional().String(),
		strconv.FormatBool(ev.IsBuyerMaker),
	}
}

func (l *CSVLog) Record(_ context.Context, ev trade.Event) error {
	return l.writeRow(l.Row(ev))
}

func (l *CSVLog) writeRow(row []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return os.ErrClosed
	}
	if err := l.w.Write(row); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("csv flush: %w", err)
	}
	return nil
}

func (l *CSVLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return nil
	}
	l.w.Flush()
	l.w = nil
	return l.f.Close()
}
