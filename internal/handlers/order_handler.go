package handlers

import (
	"vitrine/internal/models"
	"vitrine/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service  *services.OrderService
	validate *validator.Validate
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the customer order routes. The router is
// expected to carry the auth middleware.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Get("/", h.HandleListOrders)
	orderRoutes.Post("/", h.HandleCreateOrder)
	orderRoutes.Get("/:id", h.HandleGetOrder)
	orderRoutes.Post("/:id/cancel", h.HandleCancelOrder)
}

// RegisterAdminRoutes registers the admin-only order routes.
func (h *OrderHandler) RegisterAdminRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Patch("/:id/status", h.HandleUpdateStatus)
}

// OrderItemRequest is one checkout line item.
type OrderItemRequest struct {
	ProductID string  `json:"product_id" validate:"required"`
	Slug      string  `json:"slug"`
	Name      string  `json:"name" validate:"required"`
	Price     float64 `json:"price" validate:"gte=0"`
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
	Image     string  `json:"image"`
	Variant   string  `json:"variant"`
}

// ShippingAddressRequest is the delivery address at checkout.
type ShippingAddressRequest struct {
	Name       string `json:"name"`
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country" validate:"required"`
	Phone      string `json:"phone"`
}

// PaymentMethodRequest records how the order was paid.
type PaymentMethodRequest struct {
	Method    string `json:"method" validate:"required"`
	CardBrand string `json:"card_brand"`
	Last4     string `json:"last4" validate:"omitempty,len=4,numeric"`
}

// CreateOrderRequest represents the checkout payload.
type CreateOrderRequest struct {
	Email           string                 `json:"email" validate:"required,email"`
	Items           []OrderItemRequest     `json:"items" validate:"required,min=1,dive"`
	ShippingAddress ShippingAddressRequest `json:"shipping_address" validate:"required"`
	PaymentMethod   PaymentMethodRequest   `json:"payment_method" validate:"required"`
	Subtotal        float64                `json:"subtotal" validate:"gte=0"`
	ShippingCost    float64                `json:"shipping_cost" validate:"gte=0"`
	Tax             float64                `json:"tax" validate:"gte=0"`
	Total           float64                `json:"total" validate:"required,gt=0"`
}

// HandleCreateOrder creates a new order for the authenticated user.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, models.OrderItem{
			ProductID: item.ProductID,
			Slug:      item.Slug,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Image:     item.Image,
			Variant:   item.Variant,
		})
	}

	order, err := h.service.CreateOrder(c.Context(), services.CreateOrderInput{
		UserID: currentUserID(c),
		Email:  req.Email,
		Items:  items,
		ShippingAddress: models.ShippingAddress{
			Name:       req.ShippingAddress.Name,
			Street:     req.ShippingAddress.Street,
			City:       req.ShippingAddress.City,
			State:      req.ShippingAddress.State,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
			Phone:      req.ShippingAddress.Phone,
		},
		PaymentMethod: models.PaymentMethod{
			Method:    req.PaymentMethod.Method,
			CardBrand: req.PaymentMethod.CardBrand,
			Last4:     req.PaymentMethod.Last4,
		},
		Subtotal:     req.Subtotal,
		ShippingCost: req.ShippingCost,
		Tax:          req.Tax,
		Total:        req.Total,
	})
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

// HandleListOrders returns the caller's orders; admins see all orders.
func (h *OrderHandler) HandleListOrders(c *fiber.Ctx) error {
	var (
		orders []models.Order
		err    error
	)
	if isAdmin(c) {
		orders, err = h.service.ListOrders(c.Context())
	} else {
		orders, err = h.service.ListUserOrders(c.Context(), currentUserID(c))
	}
	if err != nil {
		return serviceError(c, err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return c.JSON(orders)
}

// HandleGetOrder returns a single order. Customers only see their own.
func (h *OrderHandler) HandleGetOrder(c *fiber.Ctx) error {
	order, err := h.service.GetOrder(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	if !isAdmin(c) && order.UserID != currentUserID(c) {
		return serviceError(c, services.ErrForbidden)
	}
	return c.JSON(order)
}

// HandleCancelOrder cancels the caller's order while the cancellation
// window is open.
func (h *OrderHandler) HandleCancelOrder(c *fiber.Ctx) error {
	userID := currentUserID(c)
	if isAdmin(c) {
		// Admins may cancel on behalf of any customer.
		userID = ""
	}
	order, err := h.service.CancelOrder(c.Context(), c.Params("id"), userID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Order cancelled",
		"order":   order,
	})
}

// UpdateStatusRequest moves an order to a new status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"omitempty,max=500"`
}

// HandleUpdateStatus transitions an order along the status table.
func (h *OrderHandler) HandleUpdateStatus(c *fiber.Ctx) error {
	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequestBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	order, err := h.service.UpdateStatus(c.Context(), c.Params("id"), models.OrderStatus(req.Status), req.Note)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(order)
}

func isAdmin(c *fiber.Ctx) bool {
	role, _ := c.Locals("role").(models.Role)
	return role == models.RoleAdmin
}
