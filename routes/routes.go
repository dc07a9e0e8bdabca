package routes

import (
	"github.com/gin-gonic/gin"

	config "github.com/phillip/giftfund-go/config"
	controllers "github.com/phillip/giftfund-go/controllers"
	middleware "github.com/phillip/giftfund-go/middleware"
)

func SetupRoutes(r *gin.Engine, cfg *config.Config) {
	// public: payment gateways call back without a bearer token
	r.POST("/payments/confirm", controllers.ConfirmContribution(cfg))
	r.POST("/payments/mpesa/callback", controllers.MpesaCallback(cfg))

	auth := middleware.AuthMiddleware(cfg)

	events := r.Group("/events")
	events.Use(auth)
	{
		events.POST("", controllers.CreateEvent(cfg))
		events.GET("", controllers.ListEvents(cfg))
		events.GET("/:id", controllers.GetEvent(cfg))
		events.PUT("/:id/status", controllers.UpdateEventStatus(cfg))
		events.DELETE("/:id", controllers.DeleteEvent(cfg))
		events.POST("/:id/images", controllers.UploadEventImages(cfg))

		events.GET("/:id/checkout/eligibility", controllers.CheckoutEligibility(cfg))
		events.POST("/:id/checkout", controllers.CompleteEventCheckout(cfg))

		events.POST("/:id/invite", controllers.InviteUsers(cfg))
		events.PUT("/:id/invitation/respond", controllers.RespondToInvitation(cfg))
	}

	contributions := r.Group("/contributions")
	contributions.Use(auth)
	{
		contributions.POST("", controllers.CreateContribution(cfg))
		// status polling while the gateway confirms
		contributions.GET("/status/:id", controllers.GetContribution(cfg))
		contributions.GET("/event/:eventId", controllers.ListEventContributions(cfg))
	}

	orders := r.Group("/orders")
	orders.Use(auth)
	{
		orders.GET("", controllers.ListOrders(cfg))
		orders.GET("/:id", controllers.GetOrder(cfg))
		orders.PUT("/:id/status", controllers.UpdateOrderStatus(cfg))
	}
}
