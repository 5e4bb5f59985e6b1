package meta2

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS container (
	ref TEXT PRIMARY KEY,
	namespace TEXT NOT NULL,
	ctime INTEGER NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	max_versions INTEGER NOT NULL DEFAULT 0,
	retention_delay INTEGER NOT NULL DEFAULT 0,
	default_policy TEXT NOT NULL DEFAULT 'NONE'
);
CREATE TABLE IF NOT EXISTS alias (
	path TEXT NOT NULL,
	version INTEGER NOT NULL,
	content_id TEXT NOT NULL,
	deleted INTEGER NOT NULL DEFAULT 0,
	ctime INTEGER NOT NULL,
	PRIMARY KEY (path, version)
);
CREATE INDEX IF NOT EXISTS idx_alias_path ON alias(path);
CREATE TABLE IF NOT EXISTS content (
	id TEXT PRIMARY KEY,
	size INTEGER NOT NULL,
	policy TEXT NOT NULL,
	checksum TEXT NOT NULL DEFAULT '',
	ctime INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_content_checksum ON content(checksum);
CREATE TABLE IF NOT EXISTS chunk (
	id TEXT PRIMARY KEY,
	content_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	parity INTEGER NOT NULL DEFAULT 0,
	url TEXT NOT NULL,
	size INTEGER NOT NULL,
	hash TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_chunk_content ON chunk(content_id);
CREATE TABLE IF NOT EXISTS property (
	path TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (path, key)
);
`

// store wraps one container's SQLite database - one file per container,
// exactly as the source keeps one sqlite3 handle per meta2 base.
type store struct {
	db *sql.DB
}

func openStore(dataDir, ref string) (*store, error) {
	path := filepath.Join(dataDir, strings.ReplaceAll(ref, "/", "_")+".sqlite")
	db, err := sql.Open("sqlite3", "file:"+path+"?_journal=WAL&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("meta2: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("meta2: schema %s: %w", path, err)
	}
	return &store{db: db}, nil
}

func openMemStore() (*store, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &store{db: db}, nil
}

func (s *store) Close() error { return s.db.Close() }
