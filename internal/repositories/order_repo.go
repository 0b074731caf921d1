package repositories

import (
	"context"
	"time"

	"vitrine/internal/models"
)

// OrderRepository defines the interface for order data access.
// Orders are never deleted, only updated or anonymized.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetAll(ctx context.Context) ([]models.Order, error)
	GetByUserID(ctx context.Context, userID string) ([]models.Order, error)
	Update(ctx context.Context, order *models.Order) error
	// CountSince counts orders created at or after the given time. Used
	// for the month-scoped order-number sequence.
	CountSince(ctx context.Context, since time.Time) (int64, error)
	// AnonymizeByUserID detaches all of a user's orders from the account:
	// the owner reference is cleared and the contact email masked.
	AnonymizeByUserID(ctx context.Context, userID string) (int64, error)
}
