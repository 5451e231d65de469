package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadCSV reads a recorded tick dataset for one symbol. Expected columns:
// time, bid, ask and optionally last, volume. A header row is skipped when
// the first field does not parse as a timestamp. Rows must carry RFC3339
// timestamps; blank rows are ignored.
func LoadCSV(path, symbol string) ([]Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("market: open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var ticks []Tick
	line := 0
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("market: read %s: %w", path, err)
		}
		line++

		tick, ok, err := parseTickRow(row, symbol)
		if err != nil {
			if line == 1 {
				// Header row.
				continue
			}
			return nil, fmt.Errorf("market: %s line %d: %w", path, line, err)
		}
		if ok {
			ticks = append(ticks, tick)
		}
	}
	return ticks, nil
}

// parseTickRow converts one CSV row into a Tick. ok=false for blank rows.
func parseTickRow(row []string, symbol string) (Tick, bool, error) {
	if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
		return Tick{}, false, nil
	}
	if len(row) < 3 {
		return Tick{}, false, fmt.Errorf("want at least 3 fields (time,bid,ask), got %d", len(row))
	}

	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(row[0]))
	if err != nil {
		return Tick{}, false, fmt.Errorf("bad timestamp %q: %w", row[0], err)
	}
	bid, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
	if err != nil {
		return Tick{}, false, fmt.Errorf("bad bid %q: %w", row[1], err)
	}
	ask, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
	if err != nil {
		return Tick{}, false, fmt.Errorf("bad ask %q: %w", row[2], err)
	}

	tick := Tick{Symbol: symbol, Time: ts.UTC(), Bid: bid, Ask: ask}

	if len(row) > 3 && strings.TrimSpace(row[3]) != "" {
		if tick.Last, err = strconv.ParseFloat(strings.TrimSpace(row[3]), 64); err != nil {
			return Tick{}, false, fmt.Errorf("bad last %q: %w", row[3], err)
		}
	}
	if len(row) > 4 && strings.TrimSpace(row[4]) != "" {
		if tick.Volume, err = strconv.ParseFloat(strings.TrimSpace(row[4]), 64); err != nil {
			return Tick{}, false, fmt.Errorf("bad volume %q: %w", row[4], err)
		}
	}
	return tick, true, nil
}
