package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id    TEXT PRIMARY KEY,
	email TEXT NOT NULL DEFAULT '',
	name  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tracked_objects (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL CHECK(kind IN ('quality_record', 'mandatory_form')),
	title          TEXT NOT NULL,
	due_date       DATETIME,
	status         TEXT NOT NULL,
	responsible_id TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS notifications (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL,
	target_object_id   TEXT,
	type               TEXT NOT NULL,
	message            TEXT NOT NULL,
	read               INTEGER NOT NULL DEFAULT 0 CHECK(read IN (0, 1)),
	created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_email_sent_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
CREATE INDEX IF NOT EXISTS idx_tracked_kind_status ON tracked_objects(kind, status);
CREATE INDEX IF NOT EXISTS idx_tracked_due_date ON tracked_objects(due_date);
CREATE INDEX IF NOT EXISTS idx_notifications_user_read ON notifications(user_id, read);
CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		// The dedup key is enforced here rather than by check-then-insert in
		// the scans.
		version: 2,
		sql: `
CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_dedup
	ON notifications(target_object_id, type)
	WHERE target_object_id IS NOT NULL;

INSERT INTO schema_version (version) VALUES (2);
`,
	},
	{
		version: 3,
		sql: `
CREATE TABLE IF NOT EXISTS reminder_log (
	user_id      TEXT PRIMARY KEY,
	last_sent_at DATETIME NOT NULL
);

INSERT INTO schema_version (version) VALUES (3);
`,
	},
}
