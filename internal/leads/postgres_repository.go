package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	pool rowQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithExec(exec rowQuerier) *PostgresRepository {
	if exec == nil {
		panic("leads: exec required")
	}
	return &PostgresRepository{pool: exec}
}

const leadColumns = `id, name, email, phone, source, score, answers, utm_source, utm_medium, utm_campaign, utm_term, utm_content, phone_verified, created_at`

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, lead *Lead) (*Lead, error) {
	answers, err := marshalAnswers(lead.Answers)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	query := `
		INSERT INTO leads (id, name, email, phone, source, score, answers, utm_source, utm_medium, utm_campaign, utm_term, utm_content, phone_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.pool.QueryRow(ctx, query,
		id,
		lead.Name,
		lead.Email,
		lead.Phone,
		lead.Source,
		lead.Score,
		answers,
		lead.UTM.Source,
		lead.UTM.Medium,
		lead.UTM.Campaign,
		lead.UTM.Term,
		lead.UTM.Content,
		lead.PhoneVerified,
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}

	saved := *lead
	saved.ID = id.String()
	saved.CreatedAt = createdAt
	return &saved, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrLeadNotFound
	}
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	lead, err := scanLead(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Lead, error) {
	filter = filter.normalized()
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE ($1 = '' OR source = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, filter.Source, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	out := []*Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

func scanLead(row pgx.Row) (*Lead, error) {
	var (
		lead    Lead
		id      uuid.UUID
		answers []byte
	)
	if err := row.Scan(
		&id,
		&lead.Name,
		&lead.Email,
		&lead.Phone,
		&lead.Source,
		&lead.Score,
		&answers,
		&lead.UTM.Source,
		&lead.UTM.Medium,
		&lead.UTM.Campaign,
		&lead.UTM.Term,
		&lead.UTM.Content,
		&lead.PhoneVerified,
		&lead.CreatedAt,
	); err != nil {
		return nil, err
	}
	lead.ID = id.String()
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &lead.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
	}
	return &lead, nil
}

func marshalAnswers(answers map[string]any) ([]byte, error) {
	if len(answers) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("leads: encode answers: %w", err)
	}
	return data, nil
}
