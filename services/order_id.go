package services

import (
	"fmt"
	"math/rand/v2"

	"github.com/kompetch-n/archikoo-shirt-backend/models"
)

// OrderIDMode selects who supplies the orderId of a new order.
type OrderIDMode string

const (
	OrderIDGenerated OrderIDMode = "generated"
	OrderIDClient    OrderIDMode = "client"
)

// DefaultMaxOrderIDAttempts bounds the regenerate-on-collision loop.
const DefaultMaxOrderIDAttempts = 10

// ParseOrderIDMode accepts "generated" or "client" (empty means generated).
func ParseOrderIDMode(s string) (OrderIDMode, error) {
	switch OrderIDMode(s) {
	case "", OrderIDGenerated:
		return OrderIDGenerated, nil
	case OrderIDClient:
		return OrderIDClient, nil
	default:
		return "", fmt.Errorf("unknown order id mode %q (want %q or %q)", s, OrderIDGenerated, OrderIDClient)
	}
}

// GenerateOrderID returns "ORD" followed by six random digits.
func GenerateOrderID() string {
	return fmt.Sprintf("%s%06d", models.OrderIDPrefix, rand.IntN(1_000_000))
}
