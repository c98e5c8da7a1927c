// Package order prices a cart and builds the WhatsApp hand-off message sent
// to the shop.
package order

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cinnamona/bakery/internal/catalog"
)

// Pricing defaults used when settings do not override them.
const (
	DefaultDeliveryFee           = 30
	DefaultFreeDeliveryThreshold = 300
	DefaultCurrency              = "MAD"
	DefaultShopName              = "Golden Sweet"
)

// Customer is who the order is for.
type Customer struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

// Item is one cart line.
type Item struct {
	ProductID string  `json:"productId,omitempty"`
	Name      string  `json:"name" validate:"required"`
	Price     float64 `json:"price" validate:"gte=0"`
	Quantity  int     `json:"quantity" validate:"gte=1"`
}

// Request is a public order submission.
type Request struct {
	Customer Customer `json:"customer"`
	Items    []Item   `json:"items" validate:"required,min=1,dive"`
}

// Pricing holds the delivery rules of the shop.
type Pricing struct {
	ShopName              string
	Currency              string
	DeliveryFee           float64
	FreeDeliveryThreshold float64
}

// Totals is the priced cart.
type Totals struct {
	Subtotal  float64 `json:"subtotal"`
	Delivery  float64 `json:"delivery"`
	Total     float64 `json:"total"`
	ItemCount int     `json:"itemCount"`
}

var validate = validator.New()

// Normalize trims text fields and gives items without a quantity a quantity
// of one.
func (r *Request) Normalize() {
	r.Customer.Name = strings.TrimSpace(r.Customer.Name)
	r.Customer.Phone = strings.TrimSpace(r.Customer.Phone)
	r.Customer.Address = strings.TrimSpace(r.Customer.Address)
	r.Customer.Notes = strings.TrimSpace(r.Customer.Notes)
	for i := range r.Items {
		r.Items[i].Name = strings.TrimSpace(r.Items[i].Name)
		if r.Items[i].Quantity == 0 {
			r.Items[i].Quantity = 1
		}
	}
}

// Validate reports every invalid field of r as a *catalog.ValidationError.
func (r *Request) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := &catalog.ValidationError{}
	for _, fe := range verrs {
		out.Add(fieldPath(fe.Namespace()), problem(fe))
	}
	return out
}

// fieldPath turns "Request.Items[0].Name" into "items[0].name".
func fieldPath(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		rest = ns
	}
	parts := strings.Split(rest, ".")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToLower(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, ".")
}

func problem(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param() + " entry"
	case "gte":
		return "must be at least " + fe.Param()
	default:
		return "is invalid"
	}
}

// PricingFrom reads delivery rules from the settings singleton, falling back
// to the defaults for anything unset.
func PricingFrom(s catalog.SiteSettings) Pricing {
	p := Pricing{
		ShopName:              DefaultShopName,
		Currency:              DefaultCurrency,
		DeliveryFee:           DefaultDeliveryFee,
		FreeDeliveryThreshold: DefaultFreeDeliveryThreshold,
	}
	if s.SiteName != "" {
		p.ShopName = s.SiteName
	}
	if s.Currency != "" {
		p.Currency = s.Currency
	}
	if s.DeliveryFee != nil {
		p.DeliveryFee = *s.DeliveryFee
	}
	if s.FreeDeliveryThreshold != nil {
		p.FreeDeliveryThreshold = *s.FreeDeliveryThreshold
	}
	return p
}

// Compute prices items. Delivery is free once the subtotal reaches the
// threshold.
func Compute(items []Item, p Pricing) Totals {
	var t Totals
	for _, it := range items {
		t.Subtotal += it.Price * float64(it.Quantity)
		t.ItemCount += it.Quantity
	}
	if t.Subtotal < p.FreeDeliveryThreshold {
		t.Delivery = p.DeliveryFee
	}
	t.Total = t.Subtotal + t.Delivery
	return t
}

// InvoiceNumber returns GS<yy><mm><dd> followed by three random digits.
func InvoiceNumber(now time.Time) string {
	return fmt.Sprintf("GS%s%03d", now.Format("060102"), rand.IntN(1000))
}

// ItemLines renders items as "<qty> x <name> - <line total> <currency>".
func ItemLines(items []Item, currency string) []string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("%d x %s - %s %s", it.Quantity, it.Name, Amount(it.Price*float64(it.Quantity)), currency)
	}
	return lines
}

// Amount formats a price without trailing zeros: 25, 25.5.
func Amount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Message builds the plain ASCII WhatsApp message for an order.
func Message(invoice string, c Customer, items []Item, t Totals, p Pricing) string {
	lines := []string{
		"NOUVELLE COMMANDE - " + p.ShopName,
		"",
		"Facture: #" + invoice,
		"",
		"Client: " + c.Name,
		"Telephone: " + c.Phone,
		"Adresse: " + c.Address,
	}
	if c.Notes != "" {
		lines = append(lines, "Notes: "+c.Notes)
	}
	if len(items) > 0 {
		lines = append(lines, "", "Articles:")
		for _, l := range ItemLines(items, p.Currency) {
			lines = append(lines, "- "+l)
		}
	}

	delivery := "Gratuite"
	if t.Delivery != 0 {
		delivery = Amount(t.Delivery) + " " + p.Currency
	}
	lines = append(lines,
		"",
		"Montant Total: "+Amount(t.Total)+" "+p.Currency,
		"Livraison: "+delivery,
		"",
		"---",
		"IMPORTANT: Veuillez joindre la facture telechargee",
		"(fichier PNG) a ce message avant d'envoyer.",
	)
	return strings.Join(lines, "\n")
}

// WhatsAppURL returns the wa.me link that opens a chat with number prefilled
// with message. Non-digits are stripped from number.
func WhatsAppURL(number, message string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
	text := strings.ReplaceAll(url.QueryEscape(message), "+", "%20")
	return "https://wa.me/" + digits + "?text=" + text
}
