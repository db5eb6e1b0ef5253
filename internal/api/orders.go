package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/models"
	"github.com/safar/storefront/internal/store"
)

func (s *Server) CreateOrder(c *fiber.Ctx) error {
	user := userFrom(c)

	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return database.NewValidationError("body", "invalid request body")
	}

	items := make([]store.OrderItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, store.OrderItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	order, err := s.store.CreateOrder(c.UserContext(), store.CreateOrderRequest{
		UserID:          user.ID,
		Items:           items,
		TotalPrice:      req.TotalPrice,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   models.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		return err
	}

	s.logger.Info("Order placed",
		"order_id", order.ID,
		"user_id", user.ID,
		"total_price", order.TotalPrice,
		"items", len(order.Items))
	s.notifier.OrderPlaced(c.UserContext(), order)

	return c.Status(fiber.StatusCreated).JSON(order)
}

func (s *Server) ListMyOrders(c *fiber.Ctx) error {
	user := userFrom(c)

	page, err := s.store.ListUserOrders(c.UserContext(), user.ID,
		c.Query("cursor"), c.QueryInt("limit", store.DefaultPageLimit))
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (s *Server) GetMyOrder(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	order, err := s.store.GetOrderFor(c.UserContext(), id, store.Actor{UserID: userFrom(c).ID})
	if err != nil {
		return err
	}
	return c.JSON(order)
}

func (s *Server) CancelMyOrder(c *fiber.Ctx) error {
	return s.cancelOrder(c, store.Actor{UserID: userFrom(c).ID})
}

func (s *Server) AdminCancelOrder(c *fiber.Ctx) error {
	return s.cancelOrder(c, actorFrom(c))
}

func (s *Server) cancelOrder(c *fiber.Ctx, actor store.Actor) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	order, err := s.store.CancelOrder(c.UserContext(), id, actor)
	if err != nil {
		return err
	}

	s.logger.Info("Order cancelled", "order_id", id, "by_user", actor.UserID, "admin", actor.IsAdmin)
	s.notifier.StatusChanged(c.UserContext(), order)
	return c.JSON(order)
}

// UploadSlip stores a payment slip for a PENDING order owned by the caller.
// Ownership and status are checked before the file leaves this process.
func (s *Server) UploadSlip(c *fiber.Ctx) error {
	user := userFrom(c)

	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	order, err := s.store.GetOrderFor(c.UserContext(), id, store.Actor{UserID: user.ID})
	if err != nil {
		return err
	}
	if err := store.CheckSlipUpload(order.UserID, order.Status, id, user.ID); err != nil {
		return err
	}

	fh, err := formFile(c, "slip")
	if err != nil {
		return err
	}
	if fh == nil {
		return database.NewValidationError("slip", "is required")
	}

	url, err := s.upload(c, s.slipFolder, fh)
	if err != nil {
		return err
	}

	order, err = s.store.AttachPaymentSlip(c.UserContext(), id, user.ID, url)
	if err != nil {
		return err
	}

	s.logger.Info("Payment slip attached", "order_id", id, "user_id", user.ID)
	s.notifier.StatusChanged(c.UserContext(), order)
	return c.JSON(order)
}

func (s *Server) ListOrders(c *fiber.Ctx) error {
	var filter store.OrderFilter
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseOrderStatus(raw)
		if err != nil {
			return database.NewValidationError("status", err.Error())
		}
		filter.Status = status
	}

	orders, err := s.store.ListOrders(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(orders)
}

func (s *Server) AdminGetOrder(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	order, err := s.store.GetOrderFor(c.UserContext(), id, actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(order)
}

func (s *Server) SetOrderStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return database.NewValidationError("body", "invalid request body")
	}
	status, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		return database.NewValidationError("status", err.Error())
	}

	order, err := s.store.SetOrderStatus(c.UserContext(), id, status)
	if err != nil {
		return err
	}

	s.logger.Info("Order status updated", "order_id", id, "status", order.Status)
	s.notifier.StatusChanged(c.UserContext(), order)
	return c.JSON(order)
}
