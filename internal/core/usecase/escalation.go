package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
	"github.com/kirillkom/source-aware-retrieval/internal/core/ports"
)

// EscalationUseCase persists escalation events delivered by the bus.
type EscalationUseCase struct {
	store  ports.EscalationStore
	logger *slog.Logger
}

func NewEscalationUseCase(store ports.EscalationStore, logger *slog.Logger) *EscalationUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &EscalationUseCase{store: store, logger: logger}
}

func (uc *EscalationUseCase) Record(ctx context.Context, escalation domain.EscalationData) error {
	if strings.TrimSpace(escalation.ID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record escalation", fmt.Errorf("escalation id is required"))
	}
	if escalation.Priority == "" {
		escalation.Priority = domain.PriorityLow
	}
	if err := uc.store.SaveEscalation(ctx, escalation); err != nil {
		return fmt.Errorf("save escalation %s: %w", escalation.ID, err)
	}
	uc.logger.Info("escalation_recorded",
		"escalation_id", escalation.ID,
		"priority", string(escalation.Priority),
		"confidence", escalation.Confidence,
	)
	return nil
}

// Pending lists stored escalations of one priority, oldest first.
func (uc *EscalationUseCase) Pending(ctx context.Context, priority domain.EscalationPriority, limit int) ([]domain.EscalationData, error) {
	if limit <= 0 {
		limit = 20
	}
	return uc.store.ListEscalations(ctx, priority, limit)
}
