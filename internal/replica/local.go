// Package replica implements the two durable copies of the preference
// document: a device-local SQLite cache and the shared server-held copy
// behind the preference API. The reconciler in internal/syncer keeps the
// two from diverging.
package replica

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/driftsight/internal/monitoring"
	"github.com/banshee-data/driftsight/internal/prefs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// LocalStore is the device-local durable preference cache. It survives
// restarts and serves as the fallback whenever a remote write-back fails.
type LocalStore struct {
	*sql.DB
}

// NewLocalStore opens (or creates) the local cache at path and brings its
// schema up to the latest migration version.
func NewLocalStore(path string) (*LocalStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	s := &LocalStore{db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *LocalStore) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger interface
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// Get loads the account's snapshot. found is false when the account has
// never stored one. A corrupt document decodes to defaults rather than
// failing the load.
func (s *LocalStore) Get(accountID string) (snap *prefs.Snapshot, found bool, err error) {
	var doc string
	err = s.QueryRow(`SELECT document FROM preferences WHERE account_id = ?`, accountID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load preferences for %s: %w", accountID, err)
	}
	return prefs.Decode([]byte(doc)), true, nil
}

// Put stores the account's snapshot, replacing any previous document.
func (s *LocalStore) Put(accountID string, snap *prefs.Snapshot) error {
	doc, err := snap.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	_, err = s.Exec(`
		INSERT INTO preferences (account_id, document, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(account_id) DO UPDATE SET
			document = excluded.document,
			updated_at = CURRENT_TIMESTAMP`,
		accountID, string(doc))
	if err != nil {
		return fmt.Errorf("failed to store preferences for %s: %w", accountID, err)
	}
	return nil
}

// Delete removes the account's snapshot. Used by the explicit clear action.
func (s *LocalStore) Delete(accountID string) error {
	_, err := s.Exec(`DELETE FROM preferences WHERE account_id = ?`, accountID)
	return err
}
