package actions

import (
	"context"

	"github.com/dmitrijs2005/datakeeper/internal/models"
)

// Repository persists the offline action queue.
type Repository interface {
	// Insert stores a new action.
	Insert(ctx context.Context, action *models.OfflineAction) error

	// GetByStatus returns actions in the given state ordered by queue time.
	GetByStatus(ctx context.Context, status models.ActionStatus) ([]*models.OfflineAction, error)

	// UpdateStatus moves an action to the given state.
	UpdateStatus(ctx context.Context, id string, status models.ActionStatus) error

	// MarkRetry increments the retry counter and sets the resulting state
	// (pending while under budget, failed once exhausted).
	MarkRetry(ctx context.Context, id string, status models.ActionStatus) error

	// DeleteByID removes an action (success or server-wins drop).
	DeleteByID(ctx context.Context, id string) error

	// ResetFailed moves all failed actions back to pending with a zeroed
	// retry counter, returning how many were reset.
	ResetFailed(ctx context.Context) (int, error)

	// DeleteFailed removes all failed actions outright.
	DeleteFailed(ctx context.Context) (int, error)

	// CountByStatus returns the number of actions per state.
	CountByStatus(ctx context.Context) (map[models.ActionStatus]int, error)
}
