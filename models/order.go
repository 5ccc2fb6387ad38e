package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Order statuses. An order only ever moves from pending to shipped.
const (
	StatusPending = "pending"
	StatusShipped = "shipped"
)

// OrderIDPrefix prefixes every server generated order ID.
const OrderIDPrefix = "ORD"

// AllowedSizes is the closed size set enforced when strict sizes are enabled.
var AllowedSizes = []string{"S", "M", "L", "XL", "XXL", "XXXL"}

// ShirtItem is one size/quantity line of an order.
type ShirtItem struct {
	Size     string `bson:"size" json:"size" validate:"required"`
	Quantity int    `bson:"quantity" json:"quantity" validate:"gt=0"`
}

// Order is a customer's shirt order as stored in the customers collection.
type Order struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderID        string             `bson:"orderId" json:"orderId"`
	FullName       string             `bson:"fullName" json:"fullName"`
	Phone          string             `bson:"phone" json:"phone"`
	Address        string             `bson:"address" json:"address"`
	Items          []ShirtItem        `bson:"items" json:"items"`
	TrackingNumber *string            `bson:"trackingNumber" json:"trackingNumber"`
	Status         string             `bson:"status" json:"status"`
	OrderDate      time.Time          `bson:"orderDate" json:"orderDate"`
}

// RegisterOrderRequest is the POST /register payload.
type RegisterOrderRequest struct {
	OrderID        string      `json:"orderId"`
	FullName       string      `json:"fullName" validate:"required"`
	Phone          string      `json:"phone" validate:"required"`
	Address        string      `json:"address" validate:"required"`
	Items          []ShirtItem `json:"items" validate:"required,min=1,dive"`
	TrackingNumber *string     `json:"trackingNumber"`
}

// UpdateTrackingRequest is the PUT /order/:order_id/track payload.
type UpdateTrackingRequest struct {
	TrackingNumber string `json:"trackingNumber" validate:"required"`
}

// NormalizeSize trims and upper-cases a size code.
func NormalizeSize(size string) string {
	return strings.ToUpper(strings.TrimSpace(size))
}

// IsAllowedSize reports whether size (already normalized) is in AllowedSizes.
func IsAllowedSize(size string) bool {
	for _, s := range AllowedSizes {
		if s == size {
			return true
		}
	}
	return false
}

// HasTracking reports whether a non-empty tracking number is set.
func (o *Order) HasTracking() bool {
	return o.TrackingNumber != nil && *o.TrackingNumber != ""
}

// OrderEvent is published after an order is registered or shipped.
type OrderEvent struct {
	EventType      string    `json:"eventType"`
	OrderID        string    `json:"orderId"`
	TrackingNumber string    `json:"trackingNumber,omitempty"`
	Status         string    `json:"status"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Order event types.
const (
	EventOrderRegistered = "order_registered"
	EventOrderShipped    = "order_shipped"
)
