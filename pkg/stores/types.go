package stores

import (
	"context"
	"database/sql"
	"time"
)

// WorkflowRecord is the persisted form of a workflow.
type WorkflowRecord struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	Status      string       `json:"status"`
	VehicleID   *string      `json:"vehicle_id,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Input       string       `json:"input"`            // JSON blob
	Result      *string      `json:"result,omitempty"` // JSON blob
	Steps       []StepRecord `json:"steps,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// StepRecord is one recorded pipeline step.
type StepRecord struct {
	Position  int       `json:"position"`
	Stage     string    `json:"stage"`
	Skipped   bool      `json:"skipped"`
	Reason    *string   `json:"reason,omitempty"`
	Result    *string   `json:"result,omitempty"` // JSON blob
	Timestamp time.Time `json:"timestamp"`
}

// ActivityRecord is an archived actor action with the monitor's verdict.
type ActivityRecord struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	WorkflowID *string   `json:"workflow_id,omitempty"`
	DataAccess *string   `json:"data_access,omitempty"`
	Metadata   string    `json:"metadata"` // JSON blob
	IsNormal   bool      `json:"is_normal"`
	RiskScore  float64   `json:"risk_score"`
	AnomalyID  *string   `json:"anomaly_id,omitempty"`
}

// AnomalyRow is an archived anomaly.
type AnomalyRow struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Actor       string    `json:"actor"`
	EventID     string    `json:"event_id"`
	Action      string    `json:"action"`
	Types       string    `json:"types"`    // JSON array
	Findings    string    `json:"findings"` // JSON array
	RiskScore   float64   `json:"risk_score"`
	Critical    bool      `json:"critical"`
	Status      string    `json:"status"`
	ActionTaken *string   `json:"action_taken,omitempty"`
}

// Stats counts the archived rows.
type Stats struct {
	Workflows       int            `json:"workflows"`
	WorkflowsByStat map[string]int `json:"workflows_by_status"`
	Activity        int            `json:"activity"`
	Anomalies       int            `json:"anomalies"`
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Workflow operations
	SaveWorkflow(ctx context.Context, wf *WorkflowRecord) error
	GetWorkflow(ctx context.Context, id string) (*WorkflowRecord, error)
	ListWorkflows(ctx context.Context, status *string, vehicleID *string, limit, offset int) ([]*WorkflowRecord, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// Activity operations
	AppendActivity(ctx context.Context, rec *ActivityRecord) error
	ListActivity(ctx context.Context, actor *string, workflowID *string, limit, offset int) ([]*ActivityRecord, error)

	// Anomaly operations
	SaveAnomaly(ctx context.Context, row *AnomalyRow) error
	ListAnomalies(ctx context.Context, actor *string, limit, offset int) ([]*AnomalyRow, error)
	UpdateAnomalyStatus(ctx context.Context, id, status string) error

	// Utility
	Stats(ctx context.Context) (*Stats, error)
	HealthCheck(ctx context.Context) error
}
