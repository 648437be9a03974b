// Package sqlitestore persists collection reports and module events to a
// local SQLite database so that the REST API can serve the latest state and
// per-device history without keeping everything in memory.
package sqlitestore

import (
	"bufio"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	_ "embed" // for side effect

	_ "modernc.org/sqlite" // for side effect

	"github.com/jmoiron/sqlx"
)

// errors from database
var (
	// ErrNoRowsAffected by the operation.
	ErrNoRowsAffected = errors.New("no rows affected by operation")

	// ErrNotFound means the requested device has no stored reports.
	ErrNotFound = errors.New("not found")

	// ErrDBAlreadyClosed is returned if you call Close and the database is either
	// already closed or it was never opened in the first place.
	ErrDBAlreadyClosed = errors.New("database already closed")
)

// SqliteStore wraps a sqlx handle with the schema and queries used by the
// collector. All methods are safe for concurrent use.
type SqliteStore struct {
	dbSpec string
	logger *slog.Logger
	mu     sync.RWMutex
	db     *sqlx.DB
}

var (
	//go:embed schema.sql
	schema string

	// regexp for matching comments and empty lines
	commentsAndEmptyLinesRegex = regexp.MustCompile("--.*?\n$|^\\s+$")
)

// New creates a new SqliteStore instance. If the database does not exist
// it is created. The returned bool reports whether the schema was created.
func New(dbSpec string, logger *slog.Logger) (*SqliteStore, bool, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	logger = logger.With(slog.String("component", "sqlite_store"))

	db, created, err := openDB(dbSpec)
	if err != nil {
		return nil, false, err
	}
	if created {
		logger.Info("created database", slog.String("db_spec", dbSpec))
	}

	return &SqliteStore{
		dbSpec: dbSpec,
		logger: logger,
		db:     db,
	}, created, nil
}

// Close the SqliteStore.
func (s *SqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrDBAlreadyClosed
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func openDB(dbSpec string) (*sqlx.DB, bool, error) {
	// If the file does not already exist or the database is not an in-memory
	// database we need to create the schema.
	dbNeedsCreation := true
	if !strings.Contains(dbSpec, ":memory:") {
		_, err := os.Stat(dbSpec)
		dbNeedsCreation = os.IsNotExist(err)
	}

	db, err := sqlx.Open("sqlite", dbSpec)
	if err != nil {
		return nil, false, fmt.Errorf("unable to open database: %w", err)
	}

	err = db.Ping()
	if err != nil {
		return nil, false, fmt.Errorf("unable to ping database: %w", err)
	}

	if dbNeedsCreation {
		err := createSchema(db)
		if err != nil {
			return nil, false, fmt.Errorf("unable to create schema: %w", err)
		}
	}

	return db, dbNeedsCreation, nil
}

// createSchema populates a schema into an sqlx database handle
func createSchema(db *sqlx.DB) error {
	for n, statement := range strings.Split(schema, ";") {
		statement = trimCommentsAndWhitespace(statement)

		if statement == "" {
			continue
		}

		_, err := db.Exec(statement)
		if err != nil {
			return fmt.Errorf("statement %d failed: \"%s\" : %w", n+1, statement, err)
		}
	}

	return nil
}

// trimCommentsAndWhitespace removes comments and superfluous whitespace
func trimCommentsAndWhitespace(s string) string {
	sb := strings.Builder{}

	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		line := scanner.Text() + "\n"
		sb.Write(commentsAndEmptyLinesRegex.ReplaceAll([]byte(line), nil))
	}
	return sb.String()
}

// CheckForZeroRowsAffected ensures that if zero rows are affected by operations
// that should have side-effects, an error is returned.
func CheckForZeroRowsAffected(r sql.Result, err error) error {
	if r == nil {
		return err
	}
	affected, err2 := r.RowsAffected()
	if err2 != nil {
		return err2
	}
	if affected == 0 {
		return ErrNoRowsAffected
	}

	return err
}

type noopWriter struct{}

var _ io.Writer = noopWriter{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
