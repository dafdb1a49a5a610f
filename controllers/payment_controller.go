package controllers

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"payment-service/config"
	"payment-service/invoice"
	"payment-service/middlewares"
	"payment-service/models"
	"payment-service/payment"
	"payment-service/reconciliation"

	"github.com/gin-gonic/gin"
)

type Reconciler interface {
	CompletePayment(ctx context.Context, orderID, paymentID string) (*reconciliation.CompleteResult, error)
	FailPayment(ctx context.Context, orderID string, reason models.PaymentStatus) (*reconciliation.FailResult, error)
	ReportClientFailure(ctx context.Context, orderID, failureToken string, reason models.PaymentStatus) (*reconciliation.FailResult, error)
}

type OrderFinder interface {
	FindOrderWithItems(ctx context.Context, id string) (*models.Order, error)
	FindOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
}

type InvoiceRenderer interface {
	VerifyLink(token string) (*invoice.LinkClaims, error)
	Render(order *models.Order) ([]byte, error)
}

type PaymentController struct {
	engine   Reconciler
	orders   OrderFinder
	invoices InvoiceRenderer
	cfg      *config.Config
	log      *slog.Logger
}

func NewPaymentController(engine Reconciler, orders OrderFinder, invoices InvoiceRenderer, cfg *config.Config, logger *slog.Logger) *PaymentController {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentController{engine: engine, orders: orders, invoices: invoices, cfg: cfg, log: logger}
}

// HandleWebhook processes gateway callbacks. Non-2xx responses make the
// gateway redeliver, so only transient failures return 5xx.
func (pc *PaymentController) HandleWebhook(c *gin.Context) {
	result := "error"
	defer func() { middlewares.RecordPaymentSignal("webhook", result) }()

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	signature := c.GetHeader(pc.cfg.GatewaySignatureHeader)
	if err := payment.VerifyWebhookSignature(body, signature, pc.cfg.GatewayWebhookSecret); err != nil {
		result = "invalid_signature"
		pc.log.Warn("rejected webhook", "reason", result, "remote_addr", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	ev, err := payment.ParseWebhookEvent(body)
	if err != nil {
		result = "malformed"
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}
	entity := ev.Payload.Payment.Entity
	ctx := c.Request.Context()

	switch ev.Event {
	case payment.EventPaymentCaptured:
		order, err := pc.orderForGateway(ctx, entity.OrderID)
		if err != nil {
			result = pc.webhookError(c, err, entity)
			return
		}
		if err := payment.CheckAmount(order, entity); err != nil {
			result = "amount_mismatch"
			pc.log.Warn("rejected webhook", "reason", result, "order_id", order.ID,
				"payment_id", entity.ID, "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount mismatch"})
			return
		}

		res, err := pc.engine.CompletePayment(ctx, order.ID, entity.ID)
		if err != nil {
			result = pc.webhookError(c, err, entity)
			return
		}
		result = outcome(res.AlreadyProcessed, "paid")
		c.JSON(http.StatusOK, gin.H{"status": "processed", "already_processed": res.AlreadyProcessed})

	case payment.EventPaymentFailed:
		order, err := pc.orderForGateway(ctx, entity.OrderID)
		if err != nil {
			result = pc.webhookError(c, err, entity)
			return
		}

		res, err := pc.engine.FailPayment(ctx, order.ID, models.PaymentFailed)
		if err != nil {
			result = pc.webhookError(c, err, entity)
			return
		}
		result = outcome(res.AlreadyProcessed, "failed")
		c.JSON(http.StatusOK, gin.H{"status": "processed", "already_processed": res.AlreadyProcessed})

	default:
		result = "ignored"
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

// VerifyPayment handles the signed payload the checkout widget hands the
// client after a successful payment.
func (pc *PaymentController) VerifyPayment(c *gin.Context) {
	result := "error"
	defer func() { middlewares.RecordPaymentSignal("verify", result) }()

	var req struct {
		GatewayOrderID   string `json:"gateway_order_id" binding:"required"`
		GatewayPaymentID string `json:"gateway_payment_id" binding:"required"`
		GatewaySignature string `json:"gateway_signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		result = "malformed"
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request"})
		return
	}

	if err := payment.VerifyPaymentSignature(req.GatewayOrderID, req.GatewayPaymentID, req.GatewaySignature, pc.cfg.GatewayKeySecret); err != nil {
		result = "invalid_signature"
		pc.log.Warn("rejected payment verification", "reason", result,
			"gateway_order_id", req.GatewayOrderID, "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Payment verification failed"})
		return
	}

	ctx := c.Request.Context()
	order, err := pc.orderForGateway(ctx, req.GatewayOrderID)
	if err == nil {
		var res *reconciliation.CompleteResult
		if res, err = pc.engine.CompletePayment(ctx, order.ID, req.GatewayPaymentID); err == nil {
			result = outcome(res.AlreadyProcessed, "paid")
			c.JSON(http.StatusOK, gin.H{
				"success":           true,
				"order_id":          res.Order.ID,
				"order_number":      res.Order.OrderNumber,
				"invoice_url":       res.InvoiceURL,
				"already_processed": res.AlreadyProcessed,
			})
			return
		}
	}

	result = errorLabel(err)
	pc.log.Error("payment verification failed", "gateway_order_id", req.GatewayOrderID,
		"payment_id", req.GatewayPaymentID, "error", err)
	c.JSON(statusFor(err), gin.H{"success": false, "message": "Payment verification failed"})
}

// ReportFailure handles a client reporting a failed or dismissed checkout.
func (pc *PaymentController) ReportFailure(c *gin.Context) {
	result := "error"
	defer func() { middlewares.RecordPaymentSignal("failure", result) }()

	var req struct {
		OrderID      string `json:"order_id" binding:"required"`
		FailureToken string `json:"failure_token" binding:"required"`
		Reason       string `json:"reason" binding:"omitempty,oneof=failed dismissed"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		result = "malformed"
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request"})
		return
	}

	reason := models.PaymentFailed
	if req.Reason == "dismissed" {
		reason = models.PaymentAbandoned
	}

	res, err := pc.engine.ReportClientFailure(c.Request.Context(), req.OrderID, req.FailureToken, reason)
	if err != nil {
		result = errorLabel(err)
		if !errors.Is(err, reconciliation.ErrUnauthorized) {
			pc.log.Error("failure report not recorded", "order_id", req.OrderID, "error", err)
		}
		c.JSON(statusFor(err), gin.H{"success": false, "message": "Could not update payment"})
		return
	}

	result = outcome(res.AlreadyProcessed, string(reason))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Payment status updated"})
}

// GetPaymentStatus lets a signed-in customer poll their order.
func (pc *PaymentController) GetPaymentStatus(c *gin.Context) {
	userID := c.GetInt64("userID")

	order, err := pc.orders.FindOrderWithItems(c.Request.Context(), c.Param("id"))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		pc.log.Error("failed to load order", "order_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if err != nil || order.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":       order.ID,
		"order_number":   order.OrderNumber,
		"payment_status": order.PaymentStatus,
		"status":         order.Status,
		"invoice_url":    order.InvoiceURL,
	})
}

// DownloadInvoice renders the invoice behind a signed fallback link.
func (pc *PaymentController) DownloadInvoice(c *gin.Context) {
	orderID := c.Param("id")

	claims, err := pc.invoices.VerifyLink(c.Query("token"))
	if err != nil || claims.OrderID != orderID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		return
	}

	order, err := pc.orders.FindOrderWithItems(c.Request.Context(), orderID)
	if err != nil || !claims.Matches(order) || order.PaymentStatus != models.PaymentPaid {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
		return
	}

	doc, err := pc.invoices.Render(order)
	if err != nil {
		pc.log.Error("failed to render invoice", "order_id", orderID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invoice unavailable"})
		return
	}
	c.Data(http.StatusOK, invoice.ContentType, doc)
}

func (pc *PaymentController) orderForGateway(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	if gatewayOrderID == "" {
		return nil, reconciliation.ErrNotFound
	}
	order, err := pc.orders.FindOrderByGatewayOrderID(ctx, gatewayOrderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reconciliation.ErrNotFound
	}
	return order, err
}

func (pc *PaymentController) webhookError(c *gin.Context, err error, entity payment.PaymentEntity) string {
	label := errorLabel(err)
	pc.log.Error("webhook not processed", "reason", label,
		"gateway_order_id", entity.OrderID, "payment_id", entity.ID, "error", err)
	c.JSON(statusFor(err), gin.H{"error": label})
	return label
}

func statusFor(err error) int {
	var stockErr *reconciliation.InsufficientStockError
	switch {
	case errors.Is(err, reconciliation.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, reconciliation.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, reconciliation.ErrInvalidReason):
		return http.StatusBadRequest
	case errors.As(err, &stockErr):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func errorLabel(err error) string {
	var stockErr *reconciliation.InsufficientStockError
	switch {
	case errors.Is(err, reconciliation.ErrNotFound):
		return "not_found"
	case errors.Is(err, reconciliation.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, reconciliation.ErrInvalidReason):
		return "invalid_reason"
	case errors.As(err, &stockErr):
		return "insufficient_stock"
	}
	return "error"
}

func outcome(alreadyProcessed bool, fresh string) string {
	if alreadyProcessed {
		return "already_processed"
	}
	return fresh
}
