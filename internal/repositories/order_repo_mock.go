package repositories

import (
	"context"
	"sync"
	"time"

	"vitrine/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockOrderRepository is an in-memory implementation of OrderRepository.
type MockOrderRepository struct {
	orders map[string]models.Order
	mu     sync.RWMutex
}

// NewMockOrderRepository creates a new instance of MockOrderRepository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]models.Order),
	}
}

// Create adds a new order.
func (r *MockOrderRepository) Create(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.orders {
		if existing.OrderNumber == order.OrderNumber {
			return ErrDuplicateOrderNumber
		}
	}
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	r.orders[order.ID.Hex()] = *order
	return nil
}

// GetByID returns an order by its ID.
func (r *MockOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o := order
	return &o, nil
}

// GetAll returns all orders.
func (r *MockOrderRepository) GetAll(ctx context.Context) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orderList := make([]models.Order, 0, len(r.orders))
	for _, order := range r.orders {
		orderList = append(orderList, order)
	}
	return orderList, nil
}

// GetByUserID returns all orders owned by the given user.
func (r *MockOrderRepository) GetByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orderList []models.Order
	for _, order := range r.orders {
		if order.UserID == userID {
			orderList = append(orderList, order)
		}
	}
	return orderList, nil
}

// Update replaces an existing order.
func (r *MockOrderRepository) Update(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := order.ID.Hex()
	if _, ok := r.orders[id]; !ok {
		return ErrNotFound
	}
	r.orders[id] = *order
	return nil
}

// CountSince counts orders created at or after the given time.
func (r *MockOrderRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, order := range r.orders {
		if !order.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// AnonymizeByUserID detaches all of a user's orders from the account.
func (r *MockOrderRepository) AnonymizeByUserID(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var modified int64
	for id, order := range r.orders {
		if order.UserID == userID {
			order.UserID = ""
			order.Email = "deleted@anonymized.invalid"
			order.UpdatedAt = time.Now().UTC()
			r.orders[id] = order
			modified++
		}
	}
	return modified, nil
}
