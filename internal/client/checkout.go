package client

import (
	"context"
	"fmt"

	"github.com/safar/storefront/internal/models"
)

// Checkout places the cart as an order and empties the cart once the server
// has accepted it. On any failure the cart is left untouched.
func Checkout(ctx context.Context, c *Client, cart *CartStore, shippingAddress string, method models.PaymentMethod) (*models.Order, error) {
	if cart.Count() == 0 {
		return nil, ErrEmptyCart
	}

	order, err := c.PlaceOrder(ctx, cart.OrderRequest(shippingAddress, method))
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}

	// The order exists either way; Clear logs its own persistence failure.
	_ = cart.Clear()
	return order, nil
}
