// Package sqlstore implements a canonical session store on a relational
// database through GORM. SQLite (pure Go, via glebarez/sqlite) and
// PostgreSQL are supported; the sessions table is migrated on Open.
package sqlstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/hupe1980/sessionmesh/core"
	"github.com/hupe1980/sessionmesh/logging"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Driver selects the database backend.
type Driver string

const (
	// DriverSQLite uses an embedded SQLite database file.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres uses a PostgreSQL server.
	DriverPostgres Driver = "postgres"
)

// Config configures a Store.
type Config struct {
	Driver Driver
	// DSN is a file path for SQLite or a connection string for PostgreSQL.
	DSN string
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Record is one persisted session row.
type Record struct {
	Name      string    `gorm:"primaryKey;size:128"`
	ID        string    `gorm:"primaryKey;size:256"`
	Data      string    `gorm:"type:text"`
	UpdatedAt time.Time `gorm:"index"`
}

// TableName pins the table name.
func (Record) TableName() string { return "sessions" }

// Store is a core.Handler persisting sessions in a SQL table.
type Store struct {
	db *gorm.DB

	mu   sync.RWMutex
	name string

	now    func() time.Time
	logger logging.Logger
}

var _ core.Handler = (*Store)(nil)

// Open connects to the configured database and migrates the sessions table.
func Open(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite, "":
		if cfg.DSN == "" {
			return nil, errors.New("sqlite session store requires a database path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		// journal_mode(WAL): concurrent readers with a single writer
		// busy_timeout(5000): wait up to 5 seconds when the database is locked
		dialector = sqlite.Open(cfg.DSN + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}
	return &Store{db: db, name: "default", now: time.Now, logger: logging.OrNoOp(cfg.Logger)}, nil
}

// Create selects the session namespace.
func (s *Store) Create(_, name string, _ core.CreateNext) bool {
	if name != "" {
		s.mu.Lock()
		s.name = name
		s.mu.Unlock()
	}
	return true
}

// sessionName returns the namespace selected by Create.
func (s *Store) sessionName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Read returns the stored payload or "".
func (s *Store) Read(id string, _ core.ReadNext) string {
	var rec Record
	err := s.db.Where("name = ? AND id = ?", s.sessionName(), id).Take(&rec).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("failed to read session row", "id", id, "error", err)
		}
		return ""
	}
	return rec.Data
}

// Write upserts the session row.
func (s *Store) Write(id, data string, _ core.WriteNext) bool {
	rec := Record{Name: s.sessionName(), ID: id, Data: data, UpdatedAt: s.now()}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		s.logger.Error("failed to write session row", "id", id, "error", err)
		return false
	}
	return true
}

// Delete removes the session row.
func (s *Store) Delete(id string, _ core.DeleteNext) bool {
	if err := s.db.Where("name = ? AND id = ?", s.sessionName(), id).Delete(&Record{}).Error; err != nil {
		s.logger.Error("failed to delete session row", "id", id, "error", err)
		return false
	}
	return true
}

// Clean deletes rows not updated within maxLifetime seconds.
func (s *Store) Clean(maxLifetime int, _ core.CleanNext) bool {
	cutoff := s.now().Add(-time.Duration(maxLifetime) * time.Second)
	res := s.db.Where("name = ? AND updated_at < ?", s.sessionName(), cutoff).Delete(&Record{})
	if res.Error != nil {
		s.logger.Error("failed to delete expired session rows", "error", res.Error)
		return false
	}
	s.logger.Debug("sql sessions collected", "removed", res.RowsAffected)
	return true
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
