package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openfleet/openfleet/pkg/faults"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	cfg  Config
	now  func() time.Time
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string        `yaml:"path" validate:"required"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, faults.NewInvalidInputError("database path is required", nil)
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 8
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 4
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		cfg:  cfg,
		now:  time.Now,
		path: cfg.Path,
	}, nil
}

// Init opens the database with WAL journaling and foreign keys enabled.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate applies the embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	m, err := s.migrator()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrateDown reverts every migration.
func (s *SQLiteStore) MigrateDown(_ context.Context) error {
	m, err := s.migrator()
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to revert migrations: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied migration version.
func (s *SQLiteStore) SchemaVersion() (uint, bool, error) {
	m, err := s.migrator()
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func (s *SQLiteStore) migrator() (*migrate.Migrate, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// SaveWorkflow inserts or replaces a workflow together with its steps.
func (s *SQLiteStore) SaveWorkflow(ctx context.Context, wf *WorkflowRecord) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now

	query := `
		INSERT INTO workflows (id, type, status, vehicle_id, started_at, completed_at, input, result, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			result = excluded.result,
			updated_at = excluded.updated_at
	`
	_, err = tx.ExecContext(ctx, query,
		wf.ID,
		wf.Type,
		wf.Status,
		wf.VehicleID,
		wf.StartedAt,
		wf.CompletedAt,
		wf.Input,
		wf.Result,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_steps WHERE workflow_id = ?`, wf.ID); err != nil {
		return fmt.Errorf("failed to clear workflow steps: %w", err)
	}
	for _, step := range wf.Steps {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_steps (workflow_id, position, stage, skipped, reason, result, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, wf.ID, step.Position, step.Stage, step.Skipped, step.Reason, step.Result, step.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to save step %d: %w", step.Position, err)
		}
	}

	return tx.Commit()
}

// GetWorkflow retrieves a workflow and its steps by ID
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*WorkflowRecord, error) {
	query := `
		SELECT id, type, status, vehicle_id, started_at, completed_at, input, result, created_at, updated_at
		FROM workflows
		WHERE id = ?
	`

	wf, err := scanWorkflow(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.NewNotFoundError("workflow not found", nil).WithResource(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, stage, skipped, reason, result, timestamp
		FROM workflow_steps
		WHERE workflow_id = ?
		ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var step StepRecord
		if err := rows.Scan(&step.Position, &step.Stage, &step.Skipped, &step.Reason, &step.Result, &step.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		wf.Steps = append(wf.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return wf, nil
}

// ListWorkflows lists workflows, newest first, without their steps.
func (s *SQLiteStore) ListWorkflows(ctx context.Context, status *string, vehicleID *string, limit, offset int) ([]*WorkflowRecord, error) {
	query := `
		SELECT id, type, status, vehicle_id, started_at, completed_at, input, result, created_at, updated_at
		FROM workflows
		WHERE (? IS NULL OR status = ?)
		  AND (? IS NULL OR vehicle_id = ?)
		ORDER BY started_at DESC, id
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, status, status, vehicleID, vehicleID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	workflows := []*WorkflowRecord{}
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// DeleteWorkflow deletes a workflow; its steps go with it.
func (s *SQLiteStore) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return faults.NewNotFoundError("workflow not found", nil).WithResource(id)
	}

	return nil
}

// AppendActivity archives one actor action. Re-archiving an id is a no-op.
func (s *SQLiteStore) AppendActivity(ctx context.Context, rec *ActivityRecord) error {
	query := `
		INSERT INTO activity (id, timestamp, actor, action, workflow_id, data_access, metadata, is_normal, risk_score, anomaly_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Timestamp,
		rec.Actor,
		rec.Action,
		rec.WorkflowID,
		rec.DataAccess,
		rec.Metadata,
		rec.IsNormal,
		rec.RiskScore,
		rec.AnomalyID,
	)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}

	return nil
}

// ListActivity lists archived actions, newest first.
func (s *SQLiteStore) ListActivity(ctx context.Context, actor *string, workflowID *string, limit, offset int) ([]*ActivityRecord, error) {
	query := `
		SELECT id, timestamp, actor, action, workflow_id, data_access, metadata, is_normal, risk_score, anomaly_id
		FROM activity
		WHERE (? IS NULL OR actor = ?)
		  AND (? IS NULL OR workflow_id = ?)
		ORDER BY timestamp DESC, id
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, actor, actor, workflowID, workflowID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	records := []*ActivityRecord{}
	for rows.Next() {
		rec := &ActivityRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.Timestamp,
			&rec.Actor,
			&rec.Action,
			&rec.WorkflowID,
			&rec.DataAccess,
			&rec.Metadata,
			&rec.IsNormal,
			&rec.RiskScore,
			&rec.AnomalyID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity: %w", err)
	}

	return records, nil
}

// SaveAnomaly inserts or replaces an anomaly.
func (s *SQLiteStore) SaveAnomaly(ctx context.Context, row *AnomalyRow) error {
	query := `
		INSERT INTO anomalies (id, timestamp, actor, event_id, action, types, findings, risk_score, critical, status, action_taken)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			action_taken = excluded.action_taken
	`

	_, err := s.db.ExecContext(ctx, query,
		row.ID,
		row.Timestamp,
		row.Actor,
		row.EventID,
		row.Action,
		row.Types,
		row.Findings,
		row.RiskScore,
		row.Critical,
		row.Status,
		row.ActionTaken,
	)
	if err != nil {
		return fmt.Errorf("failed to save anomaly: %w", err)
	}

	return nil
}

// ListAnomalies lists archived anomalies, newest first.
func (s *SQLiteStore) ListAnomalies(ctx context.Context, actor *string, limit, offset int) ([]*AnomalyRow, error) {
	query := `
		SELECT id, timestamp, actor, event_id, action, types, findings, risk_score, critical, status, action_taken
		FROM anomalies
		WHERE (? IS NULL OR actor = ?)
		ORDER BY timestamp DESC, id
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, actor, actor, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list anomalies: %w", err)
	}
	defer rows.Close()

	anomalies := []*AnomalyRow{}
	for rows.Next() {
		row := &AnomalyRow{}
		err := rows.Scan(
			&row.ID,
			&row.Timestamp,
			&row.Actor,
			&row.EventID,
			&row.Action,
			&row.Types,
			&row.Findings,
			&row.RiskScore,
			&row.Critical,
			&row.Status,
			&row.ActionTaken,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		anomalies = append(anomalies, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating anomalies: %w", err)
	}

	return anomalies, nil
}

// UpdateAnomalyStatus sets the review status of an anomaly.
func (s *SQLiteStore) UpdateAnomalyStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE anomalies SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update anomaly status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return faults.NewNotFoundError("anomaly not found", nil).WithResource(id)
	}

	return nil
}

// Stats counts the archived rows.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{WorkflowsByStat: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM workflows GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count workflows: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan workflow count: %w", err)
		}
		st.WorkflowsByStat[status] = n
		st.Workflows += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow counts: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity`).Scan(&st.Activity); err != nil {
		return nil, fmt.Errorf("failed to count activity: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM anomalies`).Scan(&st.Anomalies); err != nil {
		return nil, fmt.Errorf("failed to count anomalies: %w", err)
	}

	return st, nil
}

// HealthCheck verifies database connectivity
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(r rowScanner) (*WorkflowRecord, error) {
	wf := &WorkflowRecord{}
	err := r.Scan(
		&wf.ID,
		&wf.Type,
		&wf.Status,
		&wf.VehicleID,
		&wf.StartedAt,
		&wf.CompletedAt,
		&wf.Input,
		&wf.Result,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return wf, nil
}
