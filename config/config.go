// Package config describes a complete run: the simulated time range, the
// account seed, the data files behind each symbol, and the journaling,
// snapshot and task-queue settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/backsim/internal/logging"
)

type Config struct {
	Run      RunConfig      `json:"run" yaml:"run"`
	Account  AccountConfig  `json:"account" yaml:"account"`
	Symbols  []SymbolConfig `json:"symbols" yaml:"symbols"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`
	Queue    QueueConfig    `json:"queue" yaml:"queue"`
	Logging  logging.Config `json:"logging" yaml:"logging"`
}

// RunConfig frames the simulated clock and the lockstep group.
type RunConfig struct {
	ID           string    `json:"id,omitempty" yaml:"id,omitempty"` // generated when empty
	Start        time.Time `json:"start" yaml:"start"`
	End          time.Time `json:"end" yaml:"end"`
	Step         string    `json:"step" yaml:"step"` // e.g. "1m", "5s"
	Participants int       `json:"participants" yaml:"participants"`
	CloseAtEnd   bool      `json:"close_at_end" yaml:"close_at_end"`
	EquityEvery  int       `json:"equity_every" yaml:"equity_every"` // steps between equity records
}

func (r RunConfig) StepDuration() (time.Duration, error) {
	return time.ParseDuration(r.Step)
}

// AccountConfig seeds the ledger.
type AccountConfig struct {
	Balance    float64 `json:"balance" yaml:"balance"`
	Currency   string  `json:"currency" yaml:"currency"`
	Digits     int     `json:"digits" yaml:"digits"`
	Leverage   float64 `json:"leverage" yaml:"leverage"`
	StopOut    float64 `json:"stop_out" yaml:"stop_out"`
	MarginMode string  `json:"margin_mode" yaml:"margin_mode"` // "percent" or "money"
}

// SymbolConfig binds an instrument definition to its tick data file.
type SymbolConfig struct {
	Symbol        string  `json:"symbol" yaml:"symbol"`
	CSV           string  `json:"csv" yaml:"csv"`
	Digits        int     `json:"digits" yaml:"digits"`
	Point         float64 `json:"point" yaml:"point"`
	ContractSize  float64 `json:"contract_size" yaml:"contract_size"`
	MarginInitial float64 `json:"margin_initial" yaml:"margin_initial"`
	VolumeMin     float64 `json:"volume_min" yaml:"volume_min"`
	VolumeMax     float64 `json:"volume_max" yaml:"volume_max"`
	VolumeStep    float64 `json:"volume_step" yaml:"volume_step"`
	StopsLevel    int     `json:"stops_level" yaml:"stops_level"`
}

type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	DealsFile  string `json:"deals_file,omitempty" yaml:"deals_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	RunsFile   string `json:"runs_file,omitempty" yaml:"runs_file,omitempty"`
}

type SnapshotConfig struct {
	Dir      string `json:"dir,omitempty" yaml:"dir,omitempty"`
	Every    int    `json:"every" yaml:"every"` // steps between snapshots, 0 disables
	Compress bool   `json:"compress" yaml:"compress"`
	Resume   bool   `json:"resume" yaml:"resume"`
}

type QueueConfig struct {
	MinWorkers  int    `json:"min_workers" yaml:"min_workers"`
	MaxWorkers  int    `json:"max_workers" yaml:"max_workers"`
	IdleTimeout string `json:"idle_timeout,omitempty" yaml:"idle_timeout,omitempty"`
}

func (q QueueConfig) IdleDuration() (time.Duration, error) {
	if q.IdleTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(q.IdleTimeout)
}

// Default returns a runnable baseline that callers override per run.
func Default() Config {
	return Config{
		Run: RunConfig{
			Step:         "1m",
			Participants: 1,
			CloseAtEnd:   true,
			EquityEvery:  1,
		},
		Account: AccountConfig{
			Balance:    10000,
			Currency:   "USD",
			Digits:     2,
			Leverage:   100,
			StopOut:    50,
			MarginMode: "percent",
		},
		Journal:  JournalConfig{Type: "none"},
		Snapshot: SnapshotConfig{Every: 0, Compress: true},
		Queue:    QueueConfig{MinWorkers: 1, MaxWorkers: 4, IdleTimeout: "5s"},
		Logging:  logging.Config{Level: "info", Encoding: "console"},
	}
}

// Load reads a config file, YAML first with a JSON fallback, merged over
// Default() and validated.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		if jerr := json.Unmarshal(data, &cfg); jerr != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !c.Run.End.After(c.Run.Start) {
		return fmt.Errorf("run.end must be after run.start")
	}
	step, err := c.Run.StepDuration()
	if err != nil {
		return fmt.Errorf("run.step: %w", err)
	}
	if step <= 0 {
		return fmt.Errorf("run.step must be positive")
	}
	if c.Run.Participants < 1 {
		return fmt.Errorf("run.participants must be at least 1")
	}
	if c.Run.EquityEvery < 0 {
		return fmt.Errorf("run.equity_every must not be negative")
	}

	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}
	if c.Account.Leverage <= 0 {
		return fmt.Errorf("account.leverage must be positive")
	}
	switch strings.ToLower(c.Account.MarginMode) {
	case "", "percent", "money":
	default:
		return fmt.Errorf("account.margin_mode must be 'percent' or 'money'")
	}

	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if s.Symbol == "" {
			return fmt.Errorf("symbols: name is required")
		}
		if seen[s.Symbol] {
			return fmt.Errorf("symbols: %s defined twice", s.Symbol)
		}
		seen[s.Symbol] = true
		if s.CSV == "" {
			return fmt.Errorf("symbols: %s: csv path is required", s.Symbol)
		}
		if s.ContractSize <= 0 {
			return fmt.Errorf("symbols: %s: contract_size must be positive", s.Symbol)
		}
	}

	switch c.Journal.Type {
	case "", "none":
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path is required for sqlite")
		}
	case "csv":
		if c.Journal.DealsFile == "" || c.Journal.EquityFile == "" || c.Journal.RunsFile == "" {
			return fmt.Errorf("journal deals_file, equity_file and runs_file are required for csv")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}

	if c.Snapshot.Every < 0 {
		return fmt.Errorf("snapshot.every must not be negative")
	}
	if c.Snapshot.Every > 0 && c.Snapshot.Dir == "" {
		return fmt.Errorf("snapshot.dir is required when snapshots are enabled")
	}
	if c.Snapshot.Resume && c.Snapshot.Dir == "" {
		return fmt.Errorf("snapshot.dir is required to resume")
	}

	if c.Queue.MinWorkers < 1 {
		return fmt.Errorf("queue.min_workers must be at least 1")
	}
	if c.Queue.MaxWorkers < c.Queue.MinWorkers {
		return fmt.Errorf("queue.max_workers must be at least queue.min_workers")
	}
	if _, err := c.Queue.IdleDuration(); err != nil {
		return fmt.Errorf("queue.idle_timeout: %w", err)
	}
	return nil
}
