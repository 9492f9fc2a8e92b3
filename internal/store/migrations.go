package store

// migration is one schema step. Its version is its position in migrations,
// counting from one; append only.
type migration struct {
	name string
	up   string
}

var migrations = []migration{
	{
		name: "create leads and scripts",
		up: `
			CREATE TABLE leads (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL DEFAULT '',
				phone       TEXT NOT NULL DEFAULT '',
				company     TEXT NOT NULL DEFAULT '',
				created_at  TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE scripts (
				id                 TEXT PRIMARY KEY,
				name               TEXT NOT NULL DEFAULT '',
				opening_line       TEXT NOT NULL DEFAULT '',
				talking_points     TEXT,
				objection_handling TEXT NOT NULL DEFAULT '',
				persona            TEXT NOT NULL DEFAULT '',
				voice              TEXT NOT NULL DEFAULT '',
				created_at         TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at         TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
	{
		name: "create call attempts",
		up: `
			CREATE TABLE call_attempts (
				id               TEXT PRIMARY KEY,
				agent_id         TEXT NOT NULL,
				lead_id          TEXT NOT NULL,
				script_id        TEXT NOT NULL DEFAULT '',
				started_at       TEXT NOT NULL,
				outcome          TEXT NOT NULL,
				duration_seconds REAL NOT NULL DEFAULT 0,
				transcript       TEXT NOT NULL DEFAULT '',
				messages         TEXT
			);

			CREATE INDEX idx_attempts_agent ON call_attempts (agent_id, started_at);
			CREATE INDEX idx_attempts_lead ON call_attempts (lead_id);
		`,
	},
	{
		name: "create transcript search with FTS5",
		up: `
			CREATE VIRTUAL TABLE transcript_fts USING fts5(
				transcript,
				content='call_attempts',
				content_rowid='rowid'
			);

			CREATE TRIGGER attempts_ai AFTER INSERT ON call_attempts BEGIN
				INSERT INTO transcript_fts(rowid, transcript)
				VALUES (new.rowid, new.transcript);
			END;

			CREATE TRIGGER attempts_ad AFTER DELETE ON call_attempts BEGIN
				INSERT INTO transcript_fts(transcript_fts, rowid, transcript)
				VALUES ('delete', old.rowid, old.transcript);
			END;

			CREATE TRIGGER attempts_au AFTER UPDATE ON call_attempts BEGIN
				INSERT INTO transcript_fts(transcript_fts, rowid, transcript)
				VALUES ('delete', old.rowid, old.transcript);
				INSERT INTO transcript_fts(rowid, transcript)
				VALUES (new.rowid, new.transcript);
			END;
		`,
	},
}
