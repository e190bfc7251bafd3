//go:build !vaultgraph_pure

package store

import (
	"database/sql"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// driverName is the database/sql driver used for this build. The cgo
// build loads mattn/go-sqlite3, through which the real sqlite-vec
// extension (vec0 virtual tables) is registered.
const driverName = "sqlite3"

func init() {
	vec.Auto()
}

// detectVecExtension probes for vec0 virtual-table support, present
// once sqlite-vec has auto-registered itself via vec.Auto() above.
func detectVecExtension(db *sql.DB) bool {
	if _, err := db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])"); err != nil {
		return false
	}
	_, _ = db.Exec("DROP TABLE IF EXISTS vec_probe")
	return true
}
