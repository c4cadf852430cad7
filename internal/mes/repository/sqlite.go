package repository

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// OpenSQLite opens a pure-Go SQLite database. dsn may be a file path or a
// "file:name?mode=memory&cache=shared" URI.
//
// SQLite has no row locks, so the pool is held to one connection and
// transactions run one at a time.
func OpenSQLite(dsn string, cfg *gorm.Config) (*gorm.DB, error) {
	if cfg == nil {
		cfg = &gorm.Config{}
	}
	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}
