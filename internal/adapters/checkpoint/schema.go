package checkpoint

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	k TEXT PRIMARY KEY,
	v TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS nodes (
	play_id      TEXT PRIMARY KEY,
	seq          INTEGER NOT NULL,
	batter_pred  TEXT,
	pitcher_pred TEXT,
	layer        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS nodes_layer ON nodes (layer);
CREATE TABLE IF NOT EXISTS ratings (
	entity      TEXT    NOT NULL,
	role        INTEGER NOT NULL,
	hand        INTEGER NOT NULL,
	ts_index    INTEGER NOT NULL,
	timescale   INTEGER NOT NULL,
	p0 REAL NOT NULL, p1 REAL NOT NULL, p2 REAL NOT NULL,
	p3 REAL NOT NULL, p4 REAL NOT NULL, p5 REAL NOT NULL,
	p6 REAL NOT NULL, p7 REAL NOT NULL, p8 REAL NOT NULL,
	appearances INTEGER NOT NULL,
	PRIMARY KEY (entity, role, hand, ts_index)
);
`

const (
	metaFingerprint = "fingerprint"
	metaLastLayer   = "last_completed_layer"
	metaLayers      = "layers"
)

const upsertRating = `
INSERT INTO ratings (entity, role, hand, ts_index, timescale, p0, p1, p2, p3, p4, p5, p6, p7, p8, appearances)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (entity, role, hand, ts_index) DO UPDATE SET
	timescale = excluded.timescale,
	p0 = excluded.p0, p1 = excluded.p1, p2 = excluded.p2,
	p3 = excluded.p3, p4 = excluded.p4, p5 = excluded.p5,
	p6 = excluded.p6, p7 = excluded.p7, p8 = excluded.p8,
	appearances = excluded.appearances`

const upsertMeta = `INSERT INTO meta (k, v) VALUES (?, ?) ON CONFLICT (k) DO UPDATE SET v = excluded.v`
