package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"vitrine/internal/models"
	"vitrine/internal/repositories"
	"vitrine/pkg/rabbitmq"

	"go.uber.org/zap"
)

// EventPublisher publishes order lifecycle events. Satisfied by
// *rabbitmq.Client; nil-able so the service degrades to no events.
type EventPublisher interface {
	PublishOrderEvent(event rabbitmq.OrderEvent) error
}

// OrderService handles business logic related to orders.
type OrderService struct {
	orders    repositories.OrderRepository
	users     repositories.UserRepository
	publisher EventPublisher
	logger    *zap.Logger
}

// NewOrderService creates a new OrderService. publisher may be nil.
func NewOrderService(
	orders repositories.OrderRepository,
	users repositories.UserRepository,
	publisher EventPublisher,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		orders:    orders,
		users:     users,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateOrderInput is the checkout payload after route validation.
type CreateOrderInput struct {
	UserID          string
	Email           string
	Items           []models.OrderItem
	ShippingAddress models.ShippingAddress
	PaymentMethod   models.PaymentMethod
	Subtotal        float64
	ShippingCost    float64
	Tax             float64
	Total           float64
}

func (in *CreateOrderInput) validate() error {
	if len(in.Items) == 0 {
		return fmt.Errorf("order must contain at least one item: %w", ErrValidation)
	}
	for i, item := range in.Items {
		if item.ProductID == "" || item.Name == "" {
			return fmt.Errorf("item %d is missing product details: %w", i, ErrValidation)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("item %d has a non-positive quantity: %w", i, ErrValidation)
		}
		if item.Price < 0 {
			return fmt.Errorf("item %d has a negative price: %w", i, ErrValidation)
		}
	}
	if in.Email == "" {
		return fmt.Errorf("contact email is required: %w", ErrValidation)
	}
	if in.ShippingAddress.Street == "" || in.ShippingAddress.City == "" || in.ShippingAddress.Country == "" {
		return fmt.Errorf("shipping address is incomplete: %w", ErrValidation)
	}
	if in.Subtotal < 0 || in.ShippingCost < 0 || in.Tax < 0 {
		return fmt.Errorf("money fields must be non-negative: %w", ErrValidation)
	}
	if in.Total <= 0 {
		return fmt.Errorf("order total is required: %w", ErrValidation)
	}
	return nil
}

// CreateOrder validates the checkout payload, persists the order in
// status pending and runs the best-effort side effects (loyalty
// points, order event). Side-effect failures are logged, never
// propagated.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	orderNumber, err := s.nextOrderNumber(ctx, now)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		OrderNumber:     orderNumber,
		UserID:          in.UserID,
		Email:           NormalizeEmail(in.Email),
		Items:           in.Items,
		Subtotal:        in.Subtotal,
		ShippingCost:    in.ShippingCost,
		Tax:             in.Tax,
		Total:           in.Total,
		Status:          models.StatusPending,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		StatusHistory: []models.StatusChange{
			{Status: models.StatusPending, Date: now, Note: "Order created"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if in.UserID != "" {
		points := int(math.Floor(in.Total))
		if err := s.users.IncrementLoyaltyPoints(ctx, in.UserID, points); err != nil {
			s.logger.Warn("failed to credit loyalty points",
				zap.String("order_number", order.OrderNumber),
				zap.String("user_id", in.UserID),
				zap.Int("points", points),
				zap.Error(err))
		}
	}

	s.publishEvent(rabbitmq.EventOrderCreated, order)
	return order, nil
}

// GetOrder retrieves a single order by its ID.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.orders.GetByID(ctx, id)
}

// ListOrders retrieves all orders. Admin use.
func (s *OrderService) ListOrders(ctx context.Context) ([]models.Order, error) {
	return s.orders.GetAll(ctx)
}

// ListUserOrders retrieves the orders owned by the given user.
func (s *OrderService) ListUserOrders(ctx context.Context, userID string) ([]models.Order, error) {
	return s.orders.GetByUserID(ctx, userID)
}

// UpdateStatus moves an order along the transition table and appends a
// history entry. Illegal moves are rejected.
func (s *OrderService) UpdateStatus(ctx context.Context, id string, status models.OrderStatus, note string) (*models.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown order status %q: %w", status, ErrValidation)
	}

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, status)
	}

	if note == "" {
		note = fmt.Sprintf("Status changed from %s to %s", order.Status, status)
	}
	order.AppendStatus(status, time.Now().UTC(), note)

	if err := s.orders.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	s.publishEvent(rabbitmq.EventOrderStatusChanged, order)
	return order, nil
}

// CancelOrder cancels a customer's own order. Permitted only while the
// order is pending or confirmed and no older than the cancellation
// window.
func (s *OrderService) CancelOrder(ctx context.Context, id, userID string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && order.UserID != userID {
		return nil, ErrForbidden
	}

	if order.Status != models.StatusPending && order.Status != models.StatusConfirmed {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatusForCancellation, order.Status)
	}
	now := time.Now().UTC()
	if now.Sub(order.CreatedAt) > models.CancellationWindow {
		return nil, ErrCancellationWindowExpired
	}

	order.AppendStatus(models.StatusCancelled, now, "Cancelled by customer")
	if err := s.orders.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	s.publishEvent(rabbitmq.EventOrderCancelled, order)
	return order, nil
}

// nextOrderNumber builds the date-prefixed sequence number from the
// count of same-month orders. Racy under concurrent checkouts; the
// unique index turns a collision into a conflict instead of reuse.
func (s *OrderService) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	count, err := s.orders.CountSince(ctx, monthStart)
	if err != nil {
		return "", fmt.Errorf("failed to generate order number: %w", err)
	}
	return fmt.Sprintf("ORD-%s-%04d", now.Format("200601"), count+1), nil
}

func (s *OrderService) publishEvent(eventType string, order *models.Order) {
	if s.publisher == nil {
		return
	}
	event := rabbitmq.OrderEvent{
		Type:        eventType,
		OrderID:     order.ID.Hex(),
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Email:       order.Email,
		Status:      string(order.Status),
		Total:       order.Total,
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.publisher.PublishOrderEvent(event); err != nil {
		s.logger.Warn("failed to publish order event",
			zap.String("type", eventType),
			zap.String("order_number", order.OrderNumber),
			zap.Error(err))
	}
}
