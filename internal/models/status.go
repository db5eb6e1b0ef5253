package models

import (
	"fmt"
	"strings"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusShipped},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusCancelled:
		return status, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// CanTransitionTo reports whether an admin may move an order from s to next.
// SHIPPED and CANCELLED are terminal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// Cancelable reports whether stock held by the order can still be released.
func (s OrderStatus) Cancelable() bool {
	return s == OrderStatusPending
}
