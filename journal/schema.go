package journal

// SQLiteSchema creates the trades table for SQLite.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	price REAL NOT NULL,
	quantity REAL NOT NULL,
	amount REAL NOT NULL,
	leverage INTEGER NOT NULL,
	order_id TEXT NOT NULL,
	entry_time DATETIME NOT NULL,
	exit_time DATETIME,
	exit_price REAL NOT NULL DEFAULT 0,
	pnl REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_trades_user_time ON trades(username, entry_time);
`

// PostgresSchema creates the trades table for Postgres.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	quantity DOUBLE PRECISION NOT NULL,
	amount DOUBLE PRECISION NOT NULL,
	leverage INTEGER NOT NULL,
	order_id TEXT NOT NULL,
	entry_time TIMESTAMPTZ NOT NULL,
	exit_time TIMESTAMPTZ,
	exit_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_trades_user_time ON trades(username, entry_time);
`

const tradeColumns = `id, username, symbol, side, price, quantity, amount, leverage, order_id,
	entry_time, exit_time, exit_price, pnl, status, note`
