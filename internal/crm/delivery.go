package crm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outcome is the result of one relay attempt.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
	OutcomeDropped   Outcome = "dropped"
)

// Delivery is the durable record of one relay attempt.
type Delivery struct {
	ID         uuid.UUID `json:"id"`
	LeadID     string    `json:"leadId"`
	Outcome    Outcome   `json:"outcome"`
	StatusCode int       `json:"statusCode,omitempty"`
	Error      string    `json:"error,omitempty"`
	LatencyMS  int64     `json:"latencyMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DeliveryLog stores relay outcomes for observability.
type DeliveryLog interface {
	Record(ctx context.Context, d Delivery) error
	List(ctx context.Context, limit int) ([]Delivery, error)
}

// MemoryLog keeps the most recent deliveries in a bounded ring.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Delivery
	max     int
}

var _ DeliveryLog = (*MemoryLog)(nil)

// NewMemoryLog keeps at most max entries (default 1000).
func NewMemoryLog(max int) *MemoryLog {
	if max <= 0 {
		max = 1000
	}
	return &MemoryLog{max: max}
}

func (l *MemoryLog) Record(_ context.Context, d Delivery) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, d)
	if over := len(l.entries) - l.max; over > 0 {
		l.entries = append([]Delivery(nil), l.entries[over:]...)
	}
	return nil
}

// List returns newest first.
func (l *MemoryLog) List(_ context.Context, limit int) ([]Delivery, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]Delivery, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.entries[i])
	}
	return out, nil
}

type pgExecQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresLog writes deliveries to the relay_deliveries table.
type PostgresLog struct {
	pool pgExecQuerier
}

var _ DeliveryLog = (*PostgresLog)(nil)

func NewPostgresLog(pool *pgxpool.Pool) *PostgresLog {
	if pool == nil {
		panic("crm: pgx pool required")
	}
	return &PostgresLog{pool: pool}
}

func newPostgresLogWithExec(exec pgExecQuerier) *PostgresLog {
	if exec == nil {
		panic("crm: exec required")
	}
	return &PostgresLog{pool: exec}
}

func (l *PostgresLog) Record(ctx context.Context, d Delivery) error {
	query := `
		INSERT INTO relay_deliveries (id, lead_id, outcome, status_code, error, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := l.pool.Exec(ctx, query, d.ID, d.LeadID, string(d.Outcome), d.StatusCode, d.Error, d.LatencyMS, d.CreatedAt); err != nil {
		return fmt.Errorf("crm: insert delivery: %w", err)
	}
	return nil
}

func (l *PostgresLog) List(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id, lead_id, outcome, status_code, error, latency_ms, created_at
		FROM relay_deliveries
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := l.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("crm: list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		var outcome string
		if err := rows.Scan(&d.ID, &d.LeadID, &outcome, &d.StatusCode, &d.Error, &d.LatencyMS, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("crm: scan delivery: %w", err)
		}
		d.Outcome = Outcome(outcome)
		out = append(out, d)
	}
	return out, rows.Err()
}
