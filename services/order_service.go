package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/kompetch-n/archikoo-shirt-backend/errors"
	"github.com/kompetch-n/archikoo-shirt-backend/models"
	"github.com/kompetch-n/archikoo-shirt-backend/repository"
	"go.uber.org/zap"
)

// EventPublisher is a minimal interface for publishing order events.
type EventPublisher interface {
	Publish(ctx context.Context, topicArn string, message []byte) error
}

// OrderService defines the business logic interface.
type OrderService interface {
	Register(ctx context.Context, req *models.RegisterOrderRequest) (*models.Order, error)
	Track(ctx context.Context, trackingNumber string) (*models.Order, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	UpdateTracking(ctx context.Context, orderID string, req *models.UpdateTrackingRequest) (*models.Order, error)
	ListAll(ctx context.Context) ([]models.Order, error)
	SearchByName(ctx context.Context, name string) ([]models.Order, error)
	Health(ctx context.Context) error
}

// Options tunes order registration.
type Options struct {
	OrderIDMode        OrderIDMode
	StrictSizes        bool
	MaxOrderIDAttempts int
	EventsTopic        string        // SNS topic ARN or Kafka topic for order events
	PublishTimeout     time.Duration // Upper bound on one event publish
}

// DefaultPublishTimeout bounds how long a request waits on event publishing.
const DefaultPublishTimeout = 2 * time.Second

type orderServiceImpl struct {
	repo       repository.OrderRepository
	publisher  EventPublisher
	validator  *RequestValidator
	opts       Options
	logger     *zap.Logger
	newOrderID func() string
	now        func() time.Time
}

// NewOrderService creates a new OrderService. publisher may be nil.
func NewOrderService(repo repository.OrderRepository, publisher EventPublisher, opts Options, logger *zap.Logger) OrderService {
	return newOrderService(repo, publisher, opts, logger, GenerateOrderID, time.Now)
}

func newOrderService(
	repo repository.OrderRepository,
	publisher EventPublisher,
	opts Options,
	logger *zap.Logger,
	newOrderID func() string,
	now func() time.Time,
) *orderServiceImpl {
	if opts.OrderIDMode == "" {
		opts.OrderIDMode = OrderIDGenerated
	}
	if opts.MaxOrderIDAttempts <= 0 {
		opts.MaxOrderIDAttempts = DefaultMaxOrderIDAttempts
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	return &orderServiceImpl{
		repo:       repo,
		publisher:  publisher,
		validator:  NewRequestValidator(),
		opts:       opts,
		logger:     logger,
		newOrderID: newOrderID,
		now:        now,
	}
}

// Register validates req, persists a new order and returns it.
func (s *orderServiceImpl) Register(ctx context.Context, req *models.RegisterOrderRequest) (*models.Order, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, apperrors.NewValidation(err.Error())
	}

	items := make([]models.ShirtItem, 0, len(req.Items))
	for i, item := range req.Items {
		size := models.NormalizeSize(item.Size)
		if size == "" {
			return nil, apperrors.NewValidation(fmt.Sprintf("items[%d].size is required", i))
		}
		if s.opts.StrictSizes && !models.IsAllowedSize(size) {
			return nil, apperrors.NewValidation(fmt.Sprintf("items[%d].size must be one of %s",
				i, strings.Join(models.AllowedSizes, ", ")))
		}
		items = append(items, models.ShirtItem{Size: size, Quantity: item.Quantity})
	}

	order := &models.Order{
		FullName:  req.FullName,
		Phone:     req.Phone,
		Address:   req.Address,
		Items:     items,
		Status:    models.StatusPending,
		OrderDate: s.now().UTC(),
	}
	if req.TrackingNumber != nil && *req.TrackingNumber != "" {
		tracking := *req.TrackingNumber
		order.TrackingNumber = &tracking
		order.Status = models.StatusShipped
	}

	var err error
	if s.opts.OrderIDMode == OrderIDClient {
		err = s.insertClientID(ctx, order, strings.TrimSpace(req.OrderID))
	} else {
		err = s.insertGeneratedID(ctx, order)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order registered",
		zap.String("order_id", order.OrderID),
		zap.String("status", order.Status),
		zap.Int("items", len(order.Items)),
	)
	s.publishEvent(ctx, models.EventOrderRegistered, order)
	return order, nil
}

func (s *orderServiceImpl) insertClientID(ctx context.Context, order *models.Order, orderID string) error {
	if orderID == "" {
		return apperrors.NewValidation("orderId is required")
	}
	order.OrderID = orderID

	err := s.repo.Create(ctx, order)
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrDuplicateOrderID) {
		return apperrors.NewConflict(fmt.Sprintf("Order ID %s already exists", orderID))
	}
	s.logger.Error("Failed to insert order", zap.String("order_id", orderID), zap.Error(err))
	return apperrors.NewInternal("Failed to register order", err)
}

// insertGeneratedID relies on the unique orderId index: an insert that loses a
// collision is retried with a fresh ID, up to MaxOrderIDAttempts times.
func (s *orderServiceImpl) insertGeneratedID(ctx context.Context, order *models.Order) error {
	for attempt := 1; attempt <= s.opts.MaxOrderIDAttempts; attempt++ {
		order.OrderID = s.newOrderID()

		err := s.repo.Create(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateOrderID) {
			s.logger.Error("Failed to insert order", zap.String("order_id", order.OrderID), zap.Error(err))
			return apperrors.NewInternal("Failed to register order", err)
		}
		s.logger.Warn("Order ID collision, regenerating",
			zap.String("order_id", order.OrderID),
			zap.Int("attempt", attempt),
		)
	}

	s.logger.Error("Order ID attempts exhausted", zap.Int("attempts", s.opts.MaxOrderIDAttempts))
	return apperrors.ErrOrderIDExhausted
}

func (s *orderServiceImpl) Track(ctx context.Context, trackingNumber string) (*models.Order, error) {
	order, err := s.repo.FindByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, s.lookupError(err, "Tracking number not found", zap.String("tracking_number", trackingNumber))
	}
	return order, nil
}

func (s *orderServiceImpl) GetByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, s.lookupError(err, "Order ID not found", zap.String("order_id", orderID))
	}
	return order, nil
}

// UpdateTracking sets the tracking number and marks the order shipped.
// Setting the same tracking number twice returns the order unchanged.
func (s *orderServiceImpl) UpdateTracking(ctx context.Context, orderID string, req *models.UpdateTrackingRequest) (*models.Order, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, apperrors.NewValidation(err.Error())
	}

	order, err := s.repo.SetTracking(ctx, orderID, req.TrackingNumber)
	if err != nil {
		return nil, s.lookupError(err, "Order not found", zap.String("order_id", orderID))
	}

	s.logger.Info("Order shipped",
		zap.String("order_id", order.OrderID),
		zap.String("tracking_number", req.TrackingNumber),
	)
	s.publishEvent(ctx, models.EventOrderShipped, order)
	return order, nil
}

func (s *orderServiceImpl) ListAll(ctx context.Context) ([]models.Order, error) {
	orders, err := s.repo.FindAll(ctx)
	if err != nil {
		s.logger.Error("Failed to list orders", zap.Error(err))
		return nil, apperrors.NewInternal("Failed to fetch orders", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

// SearchByName returns every order whose fullName contains name, ignoring case.
func (s *orderServiceImpl) SearchByName(ctx context.Context, name string) ([]models.Order, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidation("name query parameter is required")
	}

	orders, err := s.repo.SearchByName(ctx, name)
	if err != nil {
		s.logger.Error("Failed to search orders", zap.String("name", name), zap.Error(err))
		return nil, apperrors.NewInternal("Failed to search orders", err)
	}
	if len(orders) == 0 {
		return nil, apperrors.NewNotFound("No orders match that name")
	}
	return orders, nil
}

func (s *orderServiceImpl) Health(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return apperrors.New(http.StatusServiceUnavailable, "Database unavailable", err)
	}
	return nil
}

// lookupError maps repository.ErrOrderNotFound to a 404 carrying notFoundMsg
// and anything else to a logged 500.
func (s *orderServiceImpl) lookupError(err error, notFoundMsg string, fields ...zap.Field) error {
	if errors.Is(err, repository.ErrOrderNotFound) {
		return apperrors.NewNotFound(notFoundMsg)
	}
	s.logger.Error("Order lookup failed", append(fields, zap.Error(err))...)
	return apperrors.NewInternal("Failed to fetch order", err)
}

// publishEvent is best effort: failures are logged and never surface to the
// caller, and a slow publisher is cut off after PublishTimeout.
func (s *orderServiceImpl) publishEvent(ctx context.Context, eventType string, order *models.Order) {
	if s.publisher == nil || s.opts.EventsTopic == "" {
		return
	}

	event := models.OrderEvent{
		EventType:  eventType,
		OrderID:    order.OrderID,
		Status:     order.Status,
		OccurredAt: s.now().UTC(),
	}
	if order.HasTracking() {
		event.TrackingNumber = *order.TrackingNumber
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("Failed to marshal order event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	publishCtx, cancel := context.WithTimeout(ctx, s.opts.PublishTimeout)
	defer cancel()
	if err := s.publisher.Publish(publishCtx, s.opts.EventsTopic, payload); err != nil {
		s.logger.Warn("Failed to publish order event",
			zap.String("event_type", eventType),
			zap.String("order_id", order.OrderID),
			zap.Error(err),
		)
	}
}
