package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
)

type EscalationRepository struct {
	db *sql.DB
}

func NewEscalationRepository(db *sql.DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

// SaveEscalation ignores redelivered events with an id that is already stored.
func (r *EscalationRepository) SaveEscalation(ctx context.Context, e domain.EscalationData) error {
	contextJSON, err := json.Marshal(e.Context)
	if err != nil {
		return fmt.Errorf("marshal escalation context: %w", err)
	}
	if e.Context == nil {
		contextJSON = []byte("{}")
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO escalations (id, query, category, topic, confidence, attempt_count, context, priority, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO NOTHING
`,
		e.ID, e.Query, e.Category, e.Topic, e.Confidence, e.AttemptCount, contextJSON, string(e.Priority), e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert escalation: %w", err)
	}
	return nil
}

// ListEscalations returns the oldest escalations first; an empty priority lists every priority.
func (r *EscalationRepository) ListEscalations(ctx context.Context, priority domain.EscalationPriority, limit int) ([]domain.EscalationData, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, query, category, topic, confidence, attempt_count, context, priority, created_at
FROM escalations
WHERE ($1 = '' OR priority = $1)
ORDER BY created_at ASC
LIMIT $2
`, string(priority), limit)
	if err != nil {
		return nil, fmt.Errorf("query escalations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.EscalationData, 0, limit)
	for rows.Next() {
		var (
			e          domain.EscalationData
			contextRaw []byte
			prio       string
		)
		if err := rows.Scan(&e.ID, &e.Query, &e.Category, &e.Topic, &e.Confidence, &e.AttemptCount, &contextRaw, &prio, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		if len(contextRaw) > 0 {
			if err := json.Unmarshal(contextRaw, &e.Context); err != nil {
				return nil, fmt.Errorf("unmarshal escalation context: %w", err)
			}
		}
		e.Priority = domain.EscalationPriority(prio)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escalations: %w", err)
	}
	return out, nil
}
