// Package invoice renders, stores and links the invoice document for a paid
// order.
package invoice

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"payment-service/models"
)

const ContentType = "text/html; charset=utf-8"

var invoiceTemplate = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"money": formatMinor,
	"line":  func(i models.OrderItem) string { return formatMinor(i.LineTotal()) },
}).Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Invoice {{.Order.OrderNumber}}</title></head>
<body>
<h1>Invoice {{.Order.OrderNumber}}</h1>
<p>Issued {{.Issued.Format "02 Jan 2006"}} to {{.Order.CustomerName}}</p>
<p>Payment reference {{.PaymentID}}</p>
<table>
<tr><th>Item</th><th>Qty</th><th>Unit price</th><th>Amount</th></tr>
{{- range .Order.Items}}
<tr><td>{{.ProductName}}</td><td>{{.Quantity}}</td><td>{{money .PriceAtTime}}</td><td>{{line .}}</td></tr>
{{- end}}
</table>
<p>Subtotal {{money .Order.Subtotal}} {{.Order.Currency}}</p>
<p>Delivery {{money .Order.DeliveryFee}} {{.Order.Currency}}</p>
<p><strong>Total {{money .Order.Total}} {{.Order.Currency}}</strong></p>
</body></html>
`))

type Generator struct {
	now func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// Generate renders the invoice from the order snapshot. Line prices come
// from the item snapshots, never the live catalog.
func (g *Generator) Generate(order *models.Order) ([]byte, error) {
	if order.PaymentStatus != models.PaymentPaid {
		return nil, fmt.Errorf("order %s is not paid", order.OrderNumber)
	}

	issued := order.UpdatedAt
	if issued.IsZero() {
		issued = g.now()
	}

	var buf bytes.Buffer
	err := invoiceTemplate.Execute(&buf, struct {
		Order     *models.Order
		PaymentID string
		Issued    time.Time
	}{order, deref(order.PaymentID), issued})
	if err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", order.OrderNumber, err)
	}
	return buf.Bytes(), nil
}

func formatMinor(v int64) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
