package api

import (
	"net/http"
	"time"

	"github.com/cinnamona/bakery/internal/catalog"
	"github.com/cinnamona/bakery/internal/order"
	"github.com/cinnamona/bakery/internal/storage"
)

// handleContact stores a message from the public contact form.
func handleContact(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeObject(w, r)
		if err != nil {
			deps.fail(w, r, err, catalog.Contacts.Label)
			return
		}
		delete(body, "status")
		fields, err := catalog.Contacts.Shape(body, false)
		if err != nil {
			deps.fail(w, r, err, catalog.Contacts.Label)
			return
		}
		rec, err := deps.Store.Create(catalog.Contacts.Collection, fields)
		if err != nil {
			deps.fail(w, r, err, catalog.Contacts.Label)
			return
		}
		deps.Logger.Info("contact message received", "id", rec.ID())
		writeMessage(w, http.StatusCreated, rec, "Message received")
	}
}

type placedOrder struct {
	Order       storage.Record `json:"order"`
	Message     string         `json:"message"`
	WhatsAppURL string         `json:"whatsappUrl"`
}

// handlePlaceOrder prices a public cart, stores it as an order and returns
// the WhatsApp message and link the customer sends it with.
func handlePlaceOrder(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req order.Request
		if err := decodeInto(w, r, &req); err != nil {
			deps.fail(w, r, err, catalog.Orders.Label)
			return
		}
		req.Normalize()
		if err := req.Validate(); err != nil {
			deps.fail(w, r, err, catalog.Orders.Label)
			return
		}

		doc, err := deps.Store.GetDocument(catalog.Settings.Collection)
		if err != nil {
			deps.fail(w, r, err, catalog.Orders.Label)
			return
		}
		settings, err := catalog.Decode[catalog.SiteSettings](doc)
		if err != nil {
			deps.Logger.Warn("settings unreadable, using order defaults", "error", err)
			settings = catalog.SiteSettings{}
		}
		pricing := order.PricingFrom(settings)

		totals := order.Compute(req.Items, pricing)
		invoice := order.InvoiceNumber(deps.now())
		msg := order.Message(invoice, req.Customer, req.Items, totals, pricing)
		number := settings.WhatsApp
		if number == "" {
			number = deps.WhatsAppNumber
		}

		fields, err := catalog.Orders.Shape(map[string]any{
			"invoiceNumber": invoice,
			"customer":      req.Customer.Name,
			"phone":         req.Customer.Phone,
			"address":       req.Customer.Address,
			"instructions":  req.Customer.Notes,
			"items":         order.ItemLines(req.Items, pricing.Currency),
			"subtotal":      totals.Subtotal,
			"delivery":      totals.Delivery,
			"total":         totals.Total,
			"status":        catalog.OrderWhatsAppSent,
		}, false)
		if err != nil {
			deps.fail(w, r, err, catalog.Orders.Label)
			return
		}
		rec, err := deps.Store.Create(catalog.Orders.Collection, fields)
		if err != nil {
			deps.fail(w, r, err, catalog.Orders.Label)
			return
		}

		deps.Logger.Info("order placed", "id", rec.ID(), "invoice", invoice, "total", totals.Total)
		writeMessage(w, http.StatusCreated, placedOrder{
			Order:       rec,
			Message:     msg,
			WhatsAppURL: order.WhatsAppURL(number, msg),
		}, "Order placed")
	}
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
