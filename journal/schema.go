package journal

const Schema = `
CREATE TABLE IF NOT EXISTS risk_events (
	event_id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	kind TEXT NOT NULL,
	message TEXT NOT NULL,
	stats TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_events_time ON risk_events(time);
CREATE INDEX IF NOT EXISTS idx_risk_events_kind ON risk_events(kind);

CREATE TABLE IF NOT EXISTS validations (
	validation_id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	path TEXT NOT NULL,
	is_safe INTEGER NOT NULL,
	errors TEXT NOT NULL,
	warnings TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validations_path ON validations(path);
`
