package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/kompetch-n/archikoo-shirt-backend/errors"
	"github.com/kompetch-n/archikoo-shirt-backend/models"
	"github.com/kompetch-n/archikoo-shirt-backend/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ---- in-memory repository ----

type memoryRepo struct {
	mu        sync.Mutex
	orders    []models.Order
	createErr error
	findErr   error
	pingErr   error
	creates   int
}

func (m *memoryRepo) Create(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.orders {
		if existing.OrderID == o.OrderID {
			return fmt.Errorf("insert order %s: %w", o.OrderID, repository.ErrDuplicateOrderID)
		}
	}
	o.ID = primitive.NewObjectID()
	m.orders = append(m.orders, *o)
	return nil
}

func (m *memoryRepo) FindByOrderID(_ context.Context, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, o := range m.orders {
		if o.OrderID == orderID {
			found := o
			return &found, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *memoryRepo) FindByTrackingNumber(_ context.Context, tracking string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var newest *models.Order
	for i, o := range m.orders {
		if o.TrackingNumber == nil || *o.TrackingNumber != tracking {
			continue
		}
		if newest == nil || o.OrderDate.After(newest.OrderDate) {
			newest = &m.orders[i]
		}
	}
	if newest == nil {
		return nil, repository.ErrOrderNotFound
	}
	found := *newest
	return &found, nil
}

func (m *memoryRepo) SetTracking(_ context.Context, orderID, tracking string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.orders {
		if m.orders[i].OrderID == orderID {
			t := tracking
			m.orders[i].TrackingNumber = &t
			m.orders[i].Status = models.StatusShipped
			updated := m.orders[i]
			return &updated, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *memoryRepo) FindAll(_ context.Context) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	return append([]models.Order(nil), m.orders...), nil
}

func (m *memoryRepo) SearchByName(_ context.Context, name string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []models.Order
	for _, o := range m.orders {
		if strings.Contains(strings.ToLower(o.FullName), strings.ToLower(name)) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memoryRepo) Ping(_ context.Context) error { return m.pingErr }

// ---- mock publisher ----

type mockPublisher struct {
	topics   []string
	messages [][]byte
	err      error
}

func (p *mockPublisher) Publish(_ context.Context, topicArn string, message []byte) error {
	p.topics = append(p.topics, topicArn)
	p.messages = append(p.messages, append([]byte(nil), message...))
	return p.err
}

// blockingPublisher never completes on its own; it returns when ctx ends.
type blockingPublisher struct {
	calls int
}

func (p *blockingPublisher) Publish(ctx context.Context, _ string, _ []byte) error {
	p.calls++
	<-ctx.Done()
	return ctx.Err()
}

// ---- helpers ----

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("ICT", 7*3600))

func sequenceIDs(ids ...string) func() string {
	i := 0
	return func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func newTestService(repo repository.OrderRepository, pub EventPublisher, opts Options, ids func() string) *orderServiceImpl {
	if ids == nil {
		ids = GenerateOrderID
	}
	return newOrderService(repo, pub, opts, zap.NewNop(), ids, func() time.Time { return fixedNow })
}

func validRequest() *models.RegisterOrderRequest {
	return &models.RegisterOrderRequest{
		FullName: "Anek",
		Phone:    "0811111111",
		Address:  "Bangkok",
		Items:    []models.ShirtItem{{Size: "m", Quantity: 2}},
	}
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr), "expected *errors.Error, got %T: %v", err, err)
	return appErr.Code
}

func strPtr(s string) *string { return &s }

// ---- tests ----

func TestRegister_GeneratesOrderID(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo, nil, Options{}, nil)

	order, err := svc.Register(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^ORD\d{6}$`), order.OrderID)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, "M", order.Items[0].Size)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Nil(t, order.TrackingNumber)
	assert.False(t, order.ID.IsZero())
	assert.Equal(t, time.UTC, order.OrderDate.Location())
	assert.True(t, order.OrderDate.Equal(fixedNow))
}

func TestRegister_WithTrackingIsShipped(t *testing.T) {
	svc := newTestService(&memoryRepo{}, nil, Options{}, nil)
	req := validRequest()
	req.TrackingNumber = strPtr("TH123")

	order, err := svc.Register(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, order.Status)
	require.NotNil(t, order.TrackingNumber)
	assert.Equal(t, "TH123", *order.TrackingNumber)
}

func TestRegister_EmptyTrackingIsPending(t *testing.T) {
	svc := newTestService(&memoryRepo{}, nil, Options{}, nil)
	req := validRequest()
	req.TrackingNumber = strPtr("")

	order, err := svc.Register(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Nil(t, order.TrackingNumber)
}

func TestRegister_NormalizesAllSizes(t *testing.T) {
	svc := newTestService(&memoryRepo{}, nil, Options{StrictSizes: true}, nil)
	req := validRequest()
	req.Items = []models.ShirtItem{{Size: "xl", Quantity: 1}, {Size: " xxxl ", Quantity: 3}, {Size: "S", Quantity: 1}}

	order, err := svc.Register(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "XL", order.Items[0].Size)
	assert.Equal(t, "XXXL", order.Items[1].Size)
	assert.Equal(t, "S", order.Items[2].Size)
}

func TestRegister_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		mutate  func(r *models.RegisterOrderRequest)
		message string
	}{
		{"empty items", Options{}, func(r *models.RegisterOrderRequest) { r.Items = []models.ShirtItem{} }, "items must contain at least 1 item"},
		{"nil items", Options{}, func(r *models.RegisterOrderRequest) { r.Items = nil }, "items is required"},
		{"zero quantity", Options{}, func(r *models.RegisterOrderRequest) { r.Items[0].Quantity = 0 }, "items[0].quantity must be greater than 0"},
		{"negative quantity", Options{}, func(r *models.RegisterOrderRequest) {
			r.Items = append(r.Items, models.ShirtItem{Size: "L", Quantity: -1})
		}, "items[1].quantity must be greater than 0"},
		{"missing size", Options{}, func(r *models.RegisterOrderRequest) { r.Items[0].Size = "" }, "items[0].size is required"},
		{"blank size", Options{}, func(r *models.RegisterOrderRequest) { r.Items[0].Size = "   " }, "items[0].size is required"},
		{"missing full name", Options{}, func(r *models.RegisterOrderRequest) { r.FullName = "" }, "fullName is required"},
		{"missing phone", Options{}, func(r *models.RegisterOrderRequest) { r.Phone = "" }, "phone is required"},
		{"missing address", Options{}, func(r *models.RegisterOrderRequest) { r.Address = "" }, "address is required"},
		{"size outside strict set", Options{StrictSizes: true}, func(r *models.RegisterOrderRequest) { r.Items[0].Size = "xs" }, "items[0].size must be one of S, M, L, XL, XXL, XXXL"},
		{"client mode without order id", Options{OrderIDMode: OrderIDClient}, func(r *models.RegisterOrderRequest) {}, "orderId is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &memoryRepo{}
			svc := newTestService(repo, nil, tt.opts, nil)
			req := validRequest()
			tt.mutate(req)

			order, err := svc.Register(context.Background(), req)

			assert.Nil(t, order)
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
			assert.Contains(t, err.Error(), tt.message)
			assert.Empty(t, repo.orders)
		})
	}
}

func TestRegister_NonStrictAcceptsAnySize(t *testing.T) {
	svc := newTestService(&memoryRepo{}, nil, Options{StrictSizes: false}, nil)
	req := validRequest()
	req.Items[0].Size = "4xl"

	order, err := svc.Register(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "4XL", order.Items[0].Size)
}

func TestRegister_RetriesOnCollision(t *testing.T) {
	repo := &memoryRepo{orders: []models.Order{{OrderID: "ORD111111"}}}
	svc := newTestService(repo, nil, Options{}, sequenceIDs("ORD111111", "ORD111111", "ORD222222"))

	order, err := svc.Register(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, "ORD222222", order.OrderID)
	assert.Equal(t, 3, repo.creates)
}

func TestRegister_CollisionAttemptsExhausted(t *testing.T) {
	repo := &memoryRepo{orders: []models.Order{{OrderID: "ORD111111"}}}
	svc := newTestService(repo, nil, Options{MaxOrderIDAttempts: 4}, sequenceIDs("ORD111111"))

	order, err := svc.Register(context.Background(), validRequest())

	assert.Nil(t, order)
	assert.ErrorIs(t, err, apperrors.ErrOrderIDExhausted)
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(t, err))
	assert.Equal(t, 4, repo.creates)
}

func TestRegister_GeneratedModeIgnoresClientID(t *testing.T) {
	svc := newTestService(&memoryRepo{}, nil, Options{}, sequenceIDs("ORD123456"))
	req := validRequest()
	req.OrderID = "MY-OWN-ID"

	order, err := svc.Register(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "ORD123456", order.OrderID)
}

func TestRegister_ClientSuppliedID(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo, nil, Options{OrderIDMode: OrderIDClient}, nil)
	req := validRequest()
	req.OrderID = "SHOP-0001"

	first, err := svc.Register(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "SHOP-0001", first.OrderID)

	second, err := svc.Register(context.Background(), req)
	assert.Nil(t, second)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, statusOf(t, err))
	assert.Equal(t, 2, repo.creates)
	assert.Len(t, repo.orders, 1)
}

func TestRegister_StoreFailure(t *testing.T) {
	repo := &memoryRepo{createErr: errors.New("connection reset")}
	svc := newTestService(repo, nil, Options{}, nil)

	_, err := svc.Register(context.Background(), validRequest())

	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, statusOf(t, err))
	assert.Equal(t, 1, repo.creates)
}

func TestRegister_PublishesEvent(t *testing.T) {
	pub := &mockPublisher{}
	svc := newTestService(&memoryRepo{}, pub, Options{EventsTopic: "arn:aws:sns:ap-southeast-1:000000000000:orders"}, sequenceIDs("ORD654321"))

	_, err := svc.Register(context.Background(), validRequest())
	require.NoError(t, err)

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "arn:aws:sns:ap-southeast-1:000000000000:orders", pub.topics[0])
	var event models.OrderEvent
	require.NoError(t, json.Unmarshal(pub.messages[0], &event))
	assert.Equal(t, models.EventOrderRegistered, event.EventType)
	assert.Equal(t, "ORD654321", event.OrderID)
	assert.Equal(t, models.StatusPending, event.Status)
}

func TestRegister_PublishFailureDoesNotFailRequest(t *testing.T) {
	pub := &mockPublisher{err: errors.New("sns down")}
	svc := newTestService(&memoryRepo{}, pub, Options{EventsTopic: "arn:topic"}, nil)

	order, err := svc.Register(context.Background(), validRequest())

	require.NoError(t, err)
	assert.NotNil(t, order)
	assert.Len(t, pub.messages, 1)
}

func TestRegister_SlowPublisherIsCutOff(t *testing.T) {
	pub := &blockingPublisher{}
	svc := newTestService(&memoryRepo{}, pub, Options{EventsTopic: "order-events", PublishTimeout: 50 * time.Millisecond}, nil)

	start := time.Now()
	order, err := svc.Register(context.Background(), validRequest())

	require.NoError(t, err)
	assert.NotNil(t, order)
	assert.Equal(t, 1, pub.calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewOrderService_DefaultPublishTimeout(t *testing.T) {
	svc := newTestService(&memoryRepo{}, nil, Options{}, nil)
	assert.Equal(t, DefaultPublishTimeout, svc.opts.PublishTimeout)
}

func TestTrack_DuplicateTrackingReturnsNewest(t *testing.T) {
	repo := &memoryRepo{}
	clock := fixedNow
	svc := newOrderService(repo, nil, Options{}, zap.NewNop(),
		sequenceIDs("ORD000001", "ORD000002"), func() time.Time { return clock })
	ctx := context.Background()

	req := validRequest()
	req.TrackingNumber = strPtr("TH777")
	_, err := svc.Register(ctx, req)
	require.NoError(t, err)

	clock = fixedNow.Add(time.Hour)
	req = validRequest()
	req.TrackingNumber = strPtr("TH777")
	_, err = svc.Register(ctx, req)
	require.NoError(t, err)

	order, err := svc.Track(ctx, "TH777")
	require.NoError(t, err)
	assert.Equal(t, "ORD000002", order.OrderID)
}

func TestRegister_NoTopicSkipsPublish(t *testing.T) {
	pub := &mockPublisher{}
	svc := newTestService(&memoryRepo{}, pub, Options{}, nil)

	_, err := svc.Register(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Empty(t, pub.messages)
}

func TestUpdateTracking_ThenLookups(t *testing.T) {
	pub := &mockPublisher{}
	svc := newTestService(&memoryRepo{}, pub, Options{EventsTopic: "arn:topic"}, nil)
	ctx := context.Background()

	created, err := svc.Register(ctx, validRequest())
	require.NoError(t, err)

	updated, err := svc.UpdateTracking(ctx, created.OrderID, &models.UpdateTrackingRequest{TrackingNumber: "TH123"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, updated.Status)
	assert.Equal(t, "TH123", *updated.TrackingNumber)

	byID, err := svc.GetByOrderID(ctx, created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, byID.Status)
	assert.Equal(t, "TH123", *byID.TrackingNumber)

	byTracking, err := svc.Track(ctx, "TH123")
	require.NoError(t, err)
	assert.Equal(t, created.OrderID, byTracking.OrderID)
	assert.Equal(t, created.ID, byTracking.ID)

	require.Len(t, pub.messages, 2)
	var event models.OrderEvent
	require.NoError(t, json.Unmarshal(pub.messages[1], &event))
	assert.Equal(t, models.EventOrderShipped, event.EventType)
	assert.Equal(t, "TH123", event.TrackingNumber)
}

func TestUpdateTracking_SameValueIsIdempotent(t *testing.T) {
	svc := newTestService(&memoryRepo{}, nil, Options{}, nil)
	ctx := context.Background()
	created, err := svc.Register(ctx, validRequest())
	require.NoError(t, err)

	req := &models.UpdateTrackingRequest{TrackingNumber: "TH123"}
	_, err = svc.UpdateTracking(ctx, created.OrderID, req)
	require.NoError(t, err)
	again, err := svc.UpdateTracking(ctx, created.OrderID, req)

	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, again.Status)
	assert.Equal(t, "TH123", *again.TrackingNumber)
}

func TestUpdateTracking_Errors(t *testing.T) {
	svc := newTestService(&memoryRepo{}, nil, Options{}, nil)

	_, err := svc.UpdateTracking(context.Background(), "NONEXISTENT", &models.UpdateTrackingRequest{TrackingNumber: "TH1"})
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	_, err = svc.UpdateTracking(context.Background(), "ORD000001", &models.UpdateTrackingRequest{})
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
	assert.Contains(t, err.Error(), "trackingNumber is required")
}

func TestLookups_NotFound(t *testing.T) {
	svc := newTestService(&memoryRepo{}, nil, Options{}, nil)

	_, err := svc.GetByOrderID(context.Background(), "NONEXISTENT")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.Track(context.Background(), "NOPE")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestLookups_StoreFailure(t *testing.T) {
	svc := newTestService(&memoryRepo{findErr: errors.New("timeout")}, nil, Options{}, nil)

	_, err := svc.GetByOrderID(context.Background(), "ORD000001")
	assert.Equal(t, http.StatusInternalServerError, statusOf(t, err))

	_, err = svc.ListAll(context.Background())
	assert.Equal(t, http.StatusInternalServerError, statusOf(t, err))

	_, err = svc.SearchByName(context.Background(), "anek")
	assert.Equal(t, http.StatusInternalServerError, statusOf(t, err))
}

func TestLookups_ArePure(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo, nil, Options{}, nil)
	ctx := context.Background()
	req := validRequest()
	req.TrackingNumber = strPtr("TH777")
	created, err := svc.Register(ctx, req)
	require.NoError(t, err)

	first, err := svc.GetByOrderID(ctx, created.OrderID)
	require.NoError(t, err)
	second, err := svc.GetByOrderID(ctx, created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	t1, err := svc.Track(ctx, "TH777")
	require.NoError(t, err)
	t2, err := svc.Track(ctx, "TH777")
	require.NoError(t, err)
	assert.Equal(t, t1, t2)
	assert.Len(t, repo.orders, 1)
}

func TestListAll(t *testing.T) {
	repo := &memoryRepo{}
	svc := newTestService(repo, nil, Options{}, nil)

	empty, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = svc.Register(context.Background(), validRequest())
	require.NoError(t, err)
	all, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSearchByName(t *testing.T) {
	svc := newTestService(&memoryRepo{}, nil, Options{}, nil)
	ctx := context.Background()
	for _, name := range []string{"Anek Srisuk", "Somchai", "ANEKA"} {
		req := validRequest()
		req.FullName = name
		_, err := svc.Register(ctx, req)
		require.NoError(t, err)
	}

	found, err := svc.SearchByName(ctx, "anek")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	_, err = svc.SearchByName(ctx, "nobody")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	_, err = svc.SearchByName(ctx, "  ")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

func TestHealth(t *testing.T) {
	assert.NoError(t, newTestService(&memoryRepo{}, nil, Options{}, nil).Health(context.Background()))

	err := newTestService(&memoryRepo{pingErr: errors.New("no primary")}, nil, Options{}, nil).Health(context.Background())
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(t, err))
}

func TestGenerateOrderID(t *testing.T) {
	pattern := regexp.MustCompile(`^ORD\d{6}$`)
	for i := 0; i < 200; i++ {
		assert.Regexp(t, pattern, GenerateOrderID())
	}
}

func TestParseOrderIDMode(t *testing.T) {
	mode, err := ParseOrderIDMode("")
	require.NoError(t, err)
	assert.Equal(t, OrderIDGenerated, mode)

	mode, err = ParseOrderIDMode("client")
	require.NoError(t, err)
	assert.Equal(t, OrderIDClient, mode)

	_, err = ParseOrderIDMode("random")
	assert.Error(t, err)
}
