package router

import (
	"storefront-sync/internal/handlers"
	"storefront-sync/internal/middleware"
	"storefront-sync/internal/session"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func Router(sess *session.Session, token string, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log.Named("http")))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":   "ok",
			"realtime": sess.Channel.State().Status,
		})
	})

	api := r.Group("/", middleware.LocalToken(token, log))

	cartHandler := handlers.NewCartHandler(sess.Cart, log)
	api.GET("/cart", cartHandler.Get)
	api.POST("/cart/items", cartHandler.AddItem)
	api.PUT("/cart/items/:id", cartHandler.SetQty)
	api.DELETE("/cart/items/:id", cartHandler.RemoveItem)
	api.DELETE("/cart", cartHandler.Clear)
	api.PUT("/cart/drawer", cartHandler.SetDrawer)
	api.GET("/cart/checkout", cartHandler.Checkout)

	ordersHandler := handlers.NewOrdersHandler(sess.Orders, sess, log)
	api.GET("/orders", ordersHandler.List)
	api.GET("/orders/counts", ordersHandler.Counts)
	api.POST("/orders/refresh", ordersHandler.Refresh)
	api.GET("/orders/:id", ordersHandler.Get)
	api.PATCH("/orders/:id/status", ordersHandler.UpdateStatus)

	notificationsHandler := handlers.NewNotificationsHandler(sess.Notifications, log)
	api.GET("/notifications", notificationsHandler.List)
	api.POST("/notifications/read", notificationsHandler.MarkRead)
	api.DELETE("/notifications", notificationsHandler.Clear)

	connectionHandler := handlers.NewConnectionHandler(sess.Channel, sess.Toasts, log)
	api.GET("/connection", connectionHandler.State)
	api.POST("/connection/retry", connectionHandler.Retry)
	api.GET("/toasts", connectionHandler.Toasts)

	return r
}
