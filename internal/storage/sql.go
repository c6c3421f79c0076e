package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
	"github.com/shreyachakravarty07/AgentTrace/pkg/storage"
	_ "modernc.org/sqlite"
)

// Supported SQL drivers.
const (
	PostgresDriver = "postgres"
	SQLiteDriver   = "sqlite"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	Exec(query string, args ...interface{}) (sql.Result, error)
	Rebind(query string) string
}

// SQLStore persists run history in PostgreSQL or SQLite. Queries are written
// with ? placeholders and rebound for the driver.
type SQLStore struct {
	db     DBInterface
	driver string
}

// NewSQLStore opens and pings a database. It does not apply migrations.
func NewSQLStore(driver, dsn string) (*SQLStore, error) {
	if driver != PostgresDriver && driver != SQLiteDriver {
		return nil, errors.Errorf("unsupported store driver %q", driver)
	}
	if driver == SQLiteDriver {
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", driver)
	}
	if driver == SQLiteDriver {
		// one writer at a time; avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping %s", driver)
	}
	return &SQLStore{db: db, driver: driver}, nil
}

// DB returns the underlying connection pool, or nil inside a transaction.
func (s *SQLStore) DB() *sqlx.DB {
	db, _ := s.db.(*sqlx.DB)
	return db
}

func (s *SQLStore) Driver() string {
	return s.driver
}

func (s *SQLStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &SQLStore{db: tx, driver: s.driver}, nil
	}
	return nil, errors.New("cannot begin transaction on unknown type")
}

func (s *SQLStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return errors.New("cannot commit: not a transaction")
}

func (s *SQLStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return errors.New("cannot rollback: not a transaction")
}

func (s *SQLStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// SaveRun inserts a run without its agent runs.
func (s *SQLStore) SaveRun(r models.Run) error {
	_, err := s.db.Exec(s.db.Rebind(`
		INSERT INTO runs (id, workflow_name, global_task, status, error_msg, created_at, updated_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.WorkflowName, r.GlobalTask, r.Status, r.ErrorMsg, r.CreatedAt.UTC(), r.UpdatedAt.UTC(), utcPtr(r.FinishedAt))
	if err != nil {
		return errors.Wrapf(err, "save run %s", r.ID)
	}
	return nil
}

// GetRun retrieves a run by ID, including its agent runs in execution order.
func (s *SQLStore) GetRun(id string) (models.Run, error) {
	var run models.Run
	err := s.db.Get(&run, s.db.Rebind(`
		SELECT id, workflow_name, global_task, status, error_msg, created_at, updated_at, finished_at
		FROM runs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Run{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Run{}, errors.Wrapf(err, "get run %s", id)
	}

	run.AgentRuns, err = s.GetAgentRuns(id)
	if err != nil {
		return models.Run{}, err
	}
	return run, nil
}

// ListRuns returns runs newest first, at most limit of them when limit > 0.
func (s *SQLStore) ListRuns(limit int) ([]models.Run, error) {
	runs := []models.Run{}
	query := `SELECT id, workflow_name, global_task, status, error_msg, created_at, updated_at, finished_at
		FROM runs ORDER BY created_at DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if err := s.db.Select(&runs, s.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	return runs, nil
}

// UpdateRunStatus updates the status of a run, stamping finished_at when the
// status is terminal.
func (s *SQLStore) UpdateRunStatus(id string, status models.RunStatus, errorMsg string) error {
	now := time.Now().UTC()
	var finishedAt *time.Time
	if storage.IsTerminal(status) {
		finishedAt = &now
	}
	res, err := s.db.Exec(s.db.Rebind(`
		UPDATE runs
		SET status = ?, error_msg = ?, updated_at = ?, finished_at = COALESCE(?, finished_at)
		WHERE id = ?`),
		status, errorMsg, now, finishedAt, id)
	if err != nil {
		return errors.Wrapf(err, "update run %s", id)
	}
	return expectRow(res)
}

// SaveAgentRun inserts the record of an agent step.
func (s *SQLStore) SaveAgentRun(ar models.AgentRun) error {
	_, err := s.db.Exec(s.db.Rebind(`
		INSERT INTO agent_runs (run_id, agent_id, position, model, status, input, output, error_msg, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		ar.RunID, ar.AgentID, ar.Position, ar.Model, ar.Status, ar.Input, ar.Output, ar.ErrorMsg, ar.StartedAt.UTC(), utcPtr(ar.FinishedAt))
	if err != nil {
		return errors.Wrapf(err, "save agent run %s/%s", ar.RunID, ar.AgentID)
	}
	return nil
}

// UpdateAgentRun stores the outcome of an agent step.
func (s *SQLStore) UpdateAgentRun(ar models.AgentRun) error {
	res, err := s.db.Exec(s.db.Rebind(`
		UPDATE agent_runs
		SET status = ?, output = ?, error_msg = ?, finished_at = ?
		WHERE run_id = ? AND agent_id = ?`),
		ar.Status, ar.Output, ar.ErrorMsg, utcPtr(ar.FinishedAt), ar.RunID, ar.AgentID)
	if err != nil {
		return errors.Wrapf(err, "update agent run %s/%s", ar.RunID, ar.AgentID)
	}
	return expectRow(res)
}

// GetAgentRuns returns the agent runs of a run ordered by position.
func (s *SQLStore) GetAgentRuns(runID string) ([]models.AgentRun, error) {
	agentRuns := []models.AgentRun{}
	err := s.db.Select(&agentRuns, s.db.Rebind(`
		SELECT run_id, agent_id, position, model, status, input, output, error_msg, started_at, finished_at
		FROM agent_runs WHERE run_id = ? ORDER BY position`), runID)
	if err != nil {
		return nil, errors.Wrapf(err, "get agent runs of %s", runID)
	}
	return agentRuns, nil
}

// ensureDir creates the parent directory of a SQLite database file.
func ensureDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrap(err, "creating database directory")
	}
	return nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
