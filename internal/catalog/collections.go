package catalog

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/cinnamona/bakery/internal/storage"
)

// Collection names.
const (
	ProductsCollection = "products"
	ShopsCollection    = "shops"
	FAQsCollection     = "faqs"
	ContactsCollection = "contacts"
	OrdersCollection   = "orders"
	SettingsCollection = "settings"
)

// Contact statuses.
const (
	ContactNew      = "new"
	ContactRead     = "read"
	ContactReplied  = "replied"
	ContactArchived = "archived"
)

// Order statuses, in the order the admin moves an order through them.
const (
	OrderWhatsAppSent = "WhatsApp Sent"
	OrderPending      = "Pending"
	OrderConfirmed    = "Confirmed"
	OrderPreparing    = "Preparing"
	OrderReady        = "Ready"
	OrderDelivered    = "Delivered"
	OrderCancelled    = "Cancelled"
)

// OrderStatuses lists every accepted order status.
var OrderStatuses = []string{
	OrderWhatsAppSent, OrderPending, OrderConfirmed, OrderPreparing,
	OrderReady, OrderDelivered, OrderCancelled,
}

var Products = Schema{
	Collection: ProductsCollection,
	Label:      "Product",
	PublicRead: true,
	Fields: []Field{
		{Name: "name", Kind: String, Required: true},
		{Name: "nameAr", Kind: String},
		{Name: "category", Kind: String},
		{Name: "price", Kind: Number, Required: true, NonNegative: true},
		{Name: "description", Kind: String},
		{Name: "descriptionAr", Kind: String},
		{Name: "tags", Kind: Strings, Default: []string{}},
		{Name: "image", Kind: String},
		{Name: "featured", Kind: Bool, Default: false},
		{Name: "bestSeller", Kind: Bool, Default: false},
		{Name: "inStock", Kind: Bool, Default: true},
		{Name: "status", Kind: String, OneOf: []string{"active", "draft", "archived"}, Default: "active"},
	},
}

var Shops = Schema{
	Collection: ShopsCollection,
	Label:      "Shop",
	PublicRead: true,
	Fields: []Field{
		{Name: "name", Kind: String, Required: true},
		{Name: "address", Kind: String},
		{Name: "phone", Kind: String},
		{Name: "hours", Kind: String, Default: "Open 24/7"},
	},
}

var FAQs = Schema{
	Collection: FAQsCollection,
	Label:      "FAQ",
	PublicRead: true,
	Fields: []Field{
		{Name: "category", Kind: String},
		{Name: "question", Kind: String, Required: true},
		{Name: "answer", Kind: String, Required: true},
	},
}

var Contacts = Schema{
	Collection: ContactsCollection,
	Label:      "Contact",
	Fields: []Field{
		{Name: "name", Kind: String, Required: true},
		{Name: "email", Kind: String, Required: true, Validate: "email"},
		{Name: "phone", Kind: String},
		{Name: "subject", Kind: String},
		{Name: "message", Kind: String, Required: true},
		{Name: "status", Kind: String, OneOf: []string{ContactNew, ContactRead, ContactReplied, ContactArchived}, Default: ContactNew},
	},
}

var Orders = Schema{
	Collection: OrdersCollection,
	Label:      "Order",
	Fields: []Field{
		{Name: "invoiceNumber", Kind: String},
		{Name: "customer", Kind: String, Required: true},
		{Name: "phone", Kind: String},
		{Name: "address", Kind: String},
		{Name: "instructions", Kind: String},
		{Name: "items", Kind: Strings, Required: true, Sep: "\n"},
		{Name: "subtotal", Kind: Number, NonNegative: true},
		{Name: "delivery", Kind: Number, NonNegative: true},
		{Name: "total", Kind: Number, NonNegative: true},
		{Name: "status", Kind: String, OneOf: OrderStatuses, Default: OrderPending},
	},
}

var Settings = Schema{
	Collection: SettingsCollection,
	Label:      "Settings",
	PublicRead: true,
	Singleton:  true,
	Fields: []Field{
		{Name: "siteName", Kind: String},
		{Name: "phone", Kind: String},
		{Name: "email", Kind: String, Validate: "email"},
		{Name: "address", Kind: String},
		{Name: "whatsapp", Kind: String},
		{Name: "currency", Kind: String},
		{Name: "deliveryFee", Kind: Number, NonNegative: true},
		{Name: "freeDeliveryThreshold", Kind: Number, NonNegative: true},
	},
}

// Collections returns the list collections served under /api, in mount order.
func Collections() []Schema {
	return []Schema{Products, Shops, FAQs, Contacts, Orders}
}

// Lookup returns the schema of the named collection.
func Lookup(name string) (Schema, bool) {
	for _, s := range append(Collections(), Settings) {
		if s.Collection == name {
			return s, true
		}
	}
	return Schema{}, false
}

// Decode converts a stored record into a typed value. Numeric ids are read as
// strings.
func Decode[T any](rec storage.Record) (T, error) {
	var out T
	if _, ok := rec["id"]; ok {
		rec = rec.Clone()
		rec["id"] = rec.ID()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return out, fmt.Errorf("encoding record: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decoding record: %w", err)
	}
	return out, nil
}
