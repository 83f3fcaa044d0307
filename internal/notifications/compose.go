package notifications

import (
	"fmt"
	"html"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/sendgrid"
)

// Kind names a transactional email.
type Kind string

const (
	KindOrderConfirmation Kind = "order_confirmation"
	KindOrderShipped      Kind = "order_shipped"
)

// compose renders the order summary for kind addressed to recipient.
func compose(kind Kind, order models.Order, recipient models.User) (sendgrid.Message, error) {
	var subject, intro string
	shortID := strings.ToUpper(order.ID.String()[:8])
	switch kind {
	case KindOrderConfirmation:
		subject = fmt.Sprintf("Order %s confirmed", shortID)
		intro = "Thanks for your order. Your payment was received and we are preparing your items."
	case KindOrderShipped:
		subject = fmt.Sprintf("Order %s has shipped", shortID)
		intro = "Good news: your order is on its way."
	default:
		return sendgrid.Message{}, fmt.Errorf("unknown notification kind %q", kind)
	}

	currency := strings.ToUpper(order.Currency)
	var text, body strings.Builder

	fmt.Fprintf(&text, "Hi %s,\n\n%s\n\nOrder %s\n\n", recipient.FirstName, intro, order.ID)
	fmt.Fprintf(&body, "<p>Hi %s,</p><p>%s</p><p>Order <strong>%s</strong></p>",
		html.EscapeString(recipient.FirstName), html.EscapeString(intro), order.ID)

	body.WriteString("<table><thead><tr><th>Item</th><th>Qty</th><th>Price</th><th>Line total</th></tr></thead><tbody>")
	for _, item := range order.Items {
		fmt.Fprintf(&text, "- %s x%d @ %s %s = %s %s\n",
			item.ProductName, item.Quantity, item.UnitPrice.StringFixed(2), currency, item.LineTotal().StringFixed(2), currency)
		fmt.Fprintf(&body, "<tr><td>%s</td><td>%d</td><td>%s %s</td><td>%s %s</td></tr>",
			html.EscapeString(item.ProductName), item.Quantity, item.UnitPrice.StringFixed(2), currency, item.LineTotal().StringFixed(2), currency)
	}
	body.WriteString("</tbody></table>")

	fmt.Fprintf(&text, "\nTotal: %s %s\n", order.Total.StringFixed(2), currency)
	fmt.Fprintf(&body, "<p><strong>Total: %s %s</strong></p>", order.Total.StringFixed(2), currency)

	if addr := order.ShippingAddress; addr != nil {
		line := fmt.Sprintf("%s, %s, %s %s, %s", addr.Street, addr.City, addr.State, addr.PostalCode, addr.Country)
		fmt.Fprintf(&text, "\nShipping to: %s\n", line)
		fmt.Fprintf(&body, "<p>Shipping to: %s</p>", html.EscapeString(line))
	}

	return sendgrid.Message{
		ToEmail: recipient.Email,
		ToName:  strings.TrimSpace(recipient.FirstName + " " + recipient.LastName),
		Subject: subject,
		Text:    text.String(),
		HTML:    body.String(),
	}, nil
}
