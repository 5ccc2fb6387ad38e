package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/kompetch-n/archikoo-shirt-backend/errors"
	"github.com/kompetch-n/archikoo-shirt-backend/models"
	"github.com/kompetch-n/archikoo-shirt-backend/services"
)

// OrderController handles HTTP requests for shirt orders.
type OrderController struct {
	orderService services.OrderService
}

// NewOrderController creates a new OrderController.
func NewOrderController(svc services.OrderService) *OrderController {
	return &OrderController{orderService: svc}
}

// Register handles POST /register
func (oc *OrderController) Register(ctx *gin.Context) {
	var req models.RegisterOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	order, err := oc.orderService.Register(ctx.Request.Context(), &req)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, order)
}

// Track handles GET /track/:tracking
func (oc *OrderController) Track(ctx *gin.Context) {
	order, err := oc.orderService.Track(ctx.Request.Context(), ctx.Param("tracking"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, order)
}

// GetOrder handles GET /order/:order_id
func (oc *OrderController) GetOrder(ctx *gin.Context) {
	order, err := oc.orderService.GetByOrderID(ctx.Request.Context(), ctx.Param("order_id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, order)
}

// UpdateTracking handles PUT /order/:order_id/track
func (oc *OrderController) UpdateTracking(ctx *gin.Context) {
	var req models.UpdateTrackingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	order, err := oc.orderService.UpdateTracking(ctx.Request.Context(), ctx.Param("order_id"), &req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, order)
}

// ListAll handles GET /all
func (oc *OrderController) ListAll(ctx *gin.Context) {
	orders, err := oc.orderService.ListAll(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, orders)
}

// SearchByName handles GET /search-by-name?name=
func (oc *OrderController) SearchByName(ctx *gin.Context) {
	orders, err := oc.orderService.SearchByName(ctx.Request.Context(), ctx.Query("name"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, orders)
}

// Health handles GET /health
func (oc *OrderController) Health(ctx *gin.Context) {
	if err := oc.orderService.Health(ctx.Request.Context()); err != nil {
		_ = ctx.Error(err)
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "UNAVAILABLE"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "OK"})
}

// respondError writes {"error": message} with the status carried by err and
// records err on the gin context for the request logger.
func respondError(ctx *gin.Context, err error) {
	_ = ctx.Error(err)
	code, message := apperrors.StatusOf(err)
	ctx.JSON(code, gin.H{"error": message})
}
