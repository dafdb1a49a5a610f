// Package payment authenticates signals from the payment gateway before they
// reach the reconciliation engine.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"payment-service/models"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrAmountMismatch   = errors.New("amount or currency does not match order")
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Sign is the hex HMAC-SHA256 of message under secret.
func Sign(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(secret string, message []byte, signature string) error {
	if secret == "" || signature == "" {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyWebhookSignature checks the signature header against the raw body.
func VerifyWebhookSignature(body []byte, signature, secret string) error {
	return verify(secret, body, signature)
}

// VerifyPaymentSignature checks the payload the client receives from the
// checkout widget, signed over "gatewayOrderID|paymentID".
func VerifyPaymentSignature(gatewayOrderID, paymentID, signature, secret string) error {
	if gatewayOrderID == "" || paymentID == "" {
		return ErrInvalidSignature
	}
	return verify(secret, []byte(gatewayOrderID+"|"+paymentID), signature)
}

func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if ev.Event == "" {
		return nil, errors.New("decode webhook: missing event")
	}
	return &ev, nil
}

// CheckAmount rejects a capture whose amount or currency differ from the
// stored order.
func CheckAmount(order *models.Order, entity PaymentEntity) error {
	if entity.Amount != order.Total || !strings.EqualFold(entity.Currency, order.Currency) {
		return fmt.Errorf("%w: order %s expects %d %s, gateway reported %d %s",
			ErrAmountMismatch, order.OrderNumber, order.Total, order.Currency, entity.Amount, entity.Currency)
	}
	return nil
}
