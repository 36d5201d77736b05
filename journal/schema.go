package journal

const Schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	time TEXT NOT NULL,
	bar_time TEXT NOT NULL,
	instrument TEXT NOT NULL,
	strategy TEXT NOT NULL,
	action TEXT NOT NULL,
	reason TEXT NOT NULL,
	side TEXT NOT NULL,
	entry REAL NOT NULL,
	stop_loss REAL NOT NULL,
	take_profit REAL NOT NULL,
	volume REAL NOT NULL,
	risk_pct REAL NOT NULL,
	equity REAL NOT NULL,
	used_risk_pct REAL NOT NULL,
	message TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_bar_time ON decisions(bar_time);

CREATE TABLE IF NOT EXISTS fills (
	order_id TEXT PRIMARY KEY,
	position_id TEXT NOT NULL,
	decision_id TEXT NOT NULL,
	time TEXT NOT NULL,
	instrument TEXT NOT NULL,
	side TEXT NOT NULL,
	volume REAL NOT NULL,
	requested REAL NOT NULL,
	price REAL NOT NULL,
	stop_loss REAL NOT NULL,
	take_profit REAL NOT NULL,
	paper INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	time TEXT NOT NULL,
	balance REAL NOT NULL,
	equity REAL NOT NULL,
	used_risk_pct REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
