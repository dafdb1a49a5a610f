package controllers

import (
	"net/http"

	"payment-service/middlewares"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(pc *PaymentController, jwtSecret string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.PrometheusMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Authenticated by gateway signature
	r.POST("/webhooks/payment", pc.HandleWebhook)

	// Client callbacks from the checkout widget
	r.POST("/api/payments/verify", pc.VerifyPayment)
	r.POST("/api/payments/failure", pc.ReportFailure)

	authGroup := r.Group("/api")
	authGroup.Use(middlewares.AuthMiddleware(jwtSecret))
	{
		authGroup.GET("/orders/:id/payment-status", pc.GetPaymentStatus)
	}

	r.GET("/invoices/:id", pc.DownloadInvoice)

	return r
}
