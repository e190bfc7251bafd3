//go:build vaultgraph_pure

package store

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// driverName is the database/sql driver used for this build. The pure
// build avoids cgo entirely via modernc.org/sqlite, at the cost of
// needing the vec0 compatibility layer in vec_compat.go for embedding
// similarity search.
const driverName = "sqlite"

// detectVecExtension probes for vec0 virtual-table support, provided
// here by registerVecCompat's in-memory implementation rather than the
// real sqlite-vec C extension.
func detectVecExtension(db *sql.DB) bool {
	if _, err := db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding BLOB, content TEXT, metadata TEXT)"); err != nil {
		return false
	}
	_, _ = db.Exec("DROP TABLE IF EXISTS vec_probe")
	return true
}
