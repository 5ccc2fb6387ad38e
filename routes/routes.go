package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/kompetch-n/archikoo-shirt-backend/controllers"
)

// RegisterOrderRoutes sets up all order routes.
func RegisterOrderRoutes(r *gin.Engine, oc *controllers.OrderController) {
	r.POST("/register", oc.Register)
	r.GET("/track/:tracking", oc.Track)
	r.GET("/order/:order_id", oc.GetOrder)
	r.PUT("/order/:order_id/track", oc.UpdateTracking)
	r.GET("/all", oc.ListAll)
	r.GET("/search-by-name", oc.SearchByName)

	r.GET("/health", oc.Health)
}
