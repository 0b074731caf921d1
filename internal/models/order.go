package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRefunded   OrderStatus = "refunded"
)

// CancellationWindow is how long after creation a customer may still
// cancel a pending or confirmed order.
const CancellationWindow = 30 * time.Minute

// statusTransitions maps each status to the statuses it may move to.
// cancelled and refunded are terminal; delivered only refunds.
var statusTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusConfirmed, StatusProcessing, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusShipped, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {StatusRefunded},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderItem is a purchased line item, priced at order time.
type OrderItem struct {
	ProductID string  `bson:"product_id" json:"product_id"`
	Slug      string  `bson:"slug,omitempty" json:"slug,omitempty"`
	Name      string  `bson:"name" json:"name"`
	Price     float64 `bson:"price" json:"price"`
	Quantity  int     `bson:"quantity" json:"quantity"`
	Image     string  `bson:"image,omitempty" json:"image,omitempty"`
	Variant   string  `bson:"variant,omitempty" json:"variant,omitempty"`
}

// StatusChange is one entry of the append-only status history.
type StatusChange struct {
	Status OrderStatus `bson:"status" json:"status"`
	Date   time.Time   `bson:"date" json:"date"`
	Note   string      `bson:"note,omitempty" json:"note,omitempty"`
}

// ShippingAddress is the delivery address captured at checkout.
type ShippingAddress struct {
	Name       string `bson:"name,omitempty" json:"name,omitempty"`
	Street     string `bson:"street" json:"street"`
	City       string `bson:"city" json:"city"`
	State      string `bson:"state,omitempty" json:"state,omitempty"`
	PostalCode string `bson:"postal_code,omitempty" json:"postal_code,omitempty"`
	Country    string `bson:"country" json:"country"`
	Phone      string `bson:"phone,omitempty" json:"phone,omitempty"`
}

// PaymentMethod records how the order was paid. No card data beyond
// brand and last four digits is ever stored.
type PaymentMethod struct {
	Method    string `bson:"method" json:"method"`
	CardBrand string `bson:"card_brand,omitempty" json:"card_brand,omitempty"`
	Last4     string `bson:"last4,omitempty" json:"last4,omitempty"`
}

// Order is a persisted purchase. Orders are never deleted; when the
// owning account is deleted they are anonymized instead.
type Order struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderNumber string             `bson:"order_number" json:"order_number"`
	UserID      string             `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Email       string             `bson:"email" json:"email"`

	Items []OrderItem `bson:"items" json:"items"`

	Subtotal     float64 `bson:"subtotal" json:"subtotal"`
	ShippingCost float64 `bson:"shipping_cost" json:"shipping_cost"`
	Tax          float64 `bson:"tax" json:"tax"`
	Total        float64 `bson:"total" json:"total"`

	Status        OrderStatus    `bson:"status" json:"status"`
	StatusHistory []StatusChange `bson:"status_history" json:"status_history"`

	ShippingAddress ShippingAddress `bson:"shipping_address" json:"shipping_address"`
	PaymentMethod   PaymentMethod   `bson:"payment_method" json:"payment_method"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// AppendStatus sets the status and records it in the history.
func (o *Order) AppendStatus(status OrderStatus, at time.Time, note string) {
	o.Status = status
	o.StatusHistory = append(o.StatusHistory, StatusChange{Status: status, Date: at, Note: note})
	o.UpdatedAt = at
}
