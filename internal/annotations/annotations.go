// Package annotations is the advisory derived-data cache that lives
// alongside a repository's private directory: currently exact
// feature-change counts for a (tree, tree) pair, keyed by kind and a
// stable object id. A missing entry triggers recomputation by the caller,
// never an error — this cache exists purely to skip expensive full
// enumerations on repeat queries.
package annotations

import (
	"context"
	"database/sql"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/kart-vcs/kart/internal/kerr"
)

const fileName = "annotations.db"

const schema = `
CREATE TABLE IF NOT EXISTS annotations (
	kind      TEXT NOT NULL,
	object_id TEXT NOT NULL,
	value     BLOB NOT NULL,
	PRIMARY KEY (kind, object_id)
);
`

// Store is a handle onto a repository's annotations cache.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the annotations database inside
// privateDir.
func Open(privateDir string) (*Store, error) {
	path := filepath.Join(privateDir, fileName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, kerr.Wrap(kerr.IntegrityError, err, "opening annotations cache")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, kerr.Wrap(kerr.IntegrityError, err, "initialising annotations schema")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the cached value for (kind, objectID), and whether it was
// present.
func (s *Store) Get(ctx context.Context, kind, objectID string) ([]byte, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM annotations WHERE kind = ? AND object_id = ?`, kind, objectID)
	var value []byte
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, kerr.Wrap(kerr.IntegrityError, err, "reading annotation %s/%s", kind, objectID)
	}
	return value, true, nil
}

// Put upserts the value for (kind, objectID).
func (s *Store) Put(ctx context.Context, kind, objectID string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO annotations (kind, object_id, value) VALUES (?, ?, ?)
		 ON CONFLICT(kind, object_id) DO UPDATE SET value = excluded.value`,
		kind, objectID, value)
	if err != nil {
		return kerr.Wrap(kerr.IntegrityError, err, "writing annotation %s/%s", kind, objectID)
	}
	return nil
}

// FeatureCountKind is the annotation kind used for exact diff feature
// counts, keyed by the symmetric pair "min(a,b)...max(a,b)".
const FeatureCountKind = "feature-change-count"

// SymmetricRangeKey returns the stable cache key for a pair of tree
// identifiers regardless of argument order, matching the "memoised in the
// annotations cache keyed by the symmetric pair min(a,b)...max(a,b)"
// requirement for diff counts.
func SymmetricRangeKey(a, b string) string {
	if a <= b {
		return a + "..." + b
	}
	return b + "..." + a
}
