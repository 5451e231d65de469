package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// CSVJournal appends deal, equity and run rows to three CSV files.
type CSVJournal struct {
	mu     sync.Mutex
	deals  *csv.Writer
	equity *csv.Writer
	runs   *csv.Writer
	files  []*os.File
}

func NewCSV(dealsPath, equityPath, runsPath string) (*CSVJournal, error) {
	j := &CSVJournal{}

	open := func(path string, header []string) (*csv.Writer, error) {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("journal: create %s: %w", path, err)
		}
		j.files = append(j.files, f)
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			return nil, err
		}
		w.Flush()
		return w, w.Error()
	}

	var err error
	if j.deals, err = open(dealsPath, []string{
		"run_id", "ticket", "order_id", "position_id", "symbol", "side", "entry",
		"volume", "price", "profit", "time"}); err != nil {
		j.Close()
		return nil, err
	}
	if j.equity, err = open(equityPath, []string{
		"run_id", "step", "time", "balance", "equity", "margin", "margin_free", "margin_level"}); err != nil {
		j.Close()
		return nil, err
	}
	if j.runs, err = open(runsPath, []string{
		"run_id", "start", "end", "steps", "trades", "wins", "losses", "balance", "equity", "stop_cause"}); err != nil {
		j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) RecordDeal(d DealRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.deals.Write([]string{
		d.RunID, i(d.Ticket), i(d.OrderID), i(d.PositionID), d.Symbol, d.Side, d.Entry,
		f(d.Volume), f(d.Price), f(d.Profit), d.Time.Format(time.RFC3339Nano),
	}); err != nil {
		return err
	}
	j.deals.Flush()
	return j.deals.Error()
}

func (j *CSVJournal) RecordEquity(e EquityRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.equity.Write([]string{
		e.RunID, strconv.Itoa(e.Step), e.Time.Format(time.RFC3339Nano),
		f(e.Balance), f(e.Equity), f(e.Margin), f(e.MarginFree), f(e.MarginLevel),
	}); err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) RecordRun(r RunRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.runs.Write([]string{
		r.RunID, r.Start.Format(time.RFC3339Nano), r.End.Format(time.RFC3339Nano),
		strconv.Itoa(r.Steps), strconv.Itoa(r.Trades), strconv.Itoa(r.Wins),
		strconv.Itoa(r.Losses), f(r.Balance), f(r.Equity), r.StopCause,
	}); err != nil {
		return err
	}
	j.runs.Flush()
	return j.runs.Error()
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var firstErr error
	for _, w := range []*csv.Writer{j.deals, j.equity, j.runs} {
		if w == nil {
			continue
		}
		w.Flush()
		if err := w.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, f := range j.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	j.files = nil
	return firstErr
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

func i(x int64) string {
	return strconv.FormatInt(x, 10)
}
