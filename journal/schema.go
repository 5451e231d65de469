package journal

const schema = `
CREATE TABLE IF NOT EXISTS deals (
	run_id TEXT NOT NULL,
	ticket INTEGER NOT NULL,
	order_id INTEGER NOT NULL,
	position_id INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	entry TEXT NOT NULL,
	volume REAL NOT NULL,
	price REAL NOT NULL,
	profit REAL NOT NULL,
	time DATETIME NOT NULL,
	PRIMARY KEY (run_id, ticket)
);

CREATE INDEX IF NOT EXISTS idx_deals_time ON deals(time);
CREATE INDEX IF NOT EXISTS idx_deals_position ON deals(run_id, position_id);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL,
	step INTEGER NOT NULL,
	time DATETIME NOT NULL,
	balance REAL NOT NULL,
	equity REAL NOT NULL,
	margin REAL NOT NULL,
	margin_free REAL NOT NULL,
	margin_level REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_run_step ON equity(run_id, step);

CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	start DATETIME NOT NULL,
	end DATETIME NOT NULL,
	steps INTEGER NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	balance REAL NOT NULL,
	equity REAL NOT NULL,
	stop_cause TEXT NOT NULL
);
`
