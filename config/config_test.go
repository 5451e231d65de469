package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Default()
	cfg.Run.Start = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	cfg.Run.End = time.Date(2024, 3, 1, 17, 0, 0, 0, time.UTC)
	cfg.Symbols = []SymbolConfig{{
		Symbol:        "EURUSD",
		CSV:           "testdata/eurusd.csv",
		Digits:        5,
		Point:         0.0001,
		ContractSize:  100000,
		MarginInitial: 1,
		VolumeMin:     0.01,
		VolumeMax:     100,
		VolumeStep:    0.01,
	}}
	return cfg
}

func TestValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, validConfig().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"end before start", func(c *Config) { c.Run.End = c.Run.Start }, "run.end"},
		{"bad step", func(c *Config) { c.Run.Step = "soon" }, "run.step"},
		{"zero participants", func(c *Config) { c.Run.Participants = 0 }, "participants"},
		{"no balance", func(c *Config) { c.Account.Balance = 0 }, "balance"},
		{"bad margin mode", func(c *Config) { c.Account.MarginMode = "points" }, "margin_mode"},
		{"no symbols", func(c *Config) { c.Symbols = nil }, "symbol"},
		{"duplicate symbol", func(c *Config) { c.Symbols = append(c.Symbols, c.Symbols[0]) }, "twice"},
		{"missing csv", func(c *Config) { c.Symbols[0].CSV = "" }, "csv"},
		{"bad journal type", func(c *Config) { c.Journal.Type = "parquet" }, "journal.type"},
		{"sqlite without path", func(c *Config) { c.Journal.Type = "sqlite" }, "db_path"},
		{"csv journal incomplete", func(c *Config) { c.Journal.Type = "csv"; c.Journal.DealsFile = "d.csv" }, "equity_file"},
		{"snapshots without dir", func(c *Config) { c.Snapshot.Every = 100 }, "snapshot.dir"},
		{"worker bounds", func(c *Config) { c.Queue.MaxWorkers = 0 }, "max_workers"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "run.yaml")
	doc := `
run:
  start: 2024-03-01T09:00:00Z
  end: 2024-03-01T17:00:00Z
  step: 5s
  participants: 3
account:
  balance: 25000
  leverage: 200
symbols:
  - symbol: EURUSD
    csv: testdata/eurusd.csv
    contract_size: 100000
journal:
  type: sqlite
  db_path: journal.db
snapshot:
  dir: snaps
  every: 500
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	step, err := cfg.Run.StepDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, step)
	assert.Equal(t, 3, cfg.Run.Participants)
	assert.Equal(t, 25000.0, cfg.Account.Balance)
	assert.Equal(t, 200.0, cfg.Account.Leverage)

	// Defaults survive a partial document.
	assert.Equal(t, "USD", cfg.Account.Currency)
	assert.Equal(t, 50.0, cfg.Account.StopOut)
	assert.Equal(t, 4, cfg.Queue.MaxWorkers)
	assert.True(t, cfg.Run.CloseAtEnd)

	assert.Equal(t, "sqlite", cfg.Journal.Type)
	assert.Equal(t, 500, cfg.Snapshot.Every)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  step: 1m\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run.end")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
