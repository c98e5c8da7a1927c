package catalog

// Product is a menu item.
type Product struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	NameAr        string   `json:"nameAr,omitempty"`
	Category      string   `json:"category,omitempty"`
	Price         float64  `json:"price"`
	Description   string   `json:"description,omitempty"`
	DescriptionAr string   `json:"descriptionAr,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Image         string   `json:"image,omitempty"`
	Featured      bool     `json:"featured"`
	BestSeller    bool     `json:"bestSeller"`
	InStock       bool     `json:"inStock"`
	Status        string   `json:"status,omitempty"`
}

// Shop is a physical location.
type Shop struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Hours   string `json:"hours,omitempty"`
}

// FAQ is one question and answer.
type FAQ struct {
	ID       string `json:"id"`
	Category string `json:"category,omitempty"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// SiteSettings is the settings singleton.
type SiteSettings struct {
	SiteName              string   `json:"siteName,omitempty"`
	Phone                 string   `json:"phone,omitempty"`
	Email                 string   `json:"email,omitempty"`
	Address               string   `json:"address,omitempty"`
	WhatsApp              string   `json:"whatsapp,omitempty"`
	Currency              string   `json:"currency,omitempty"`
	DeliveryFee           *float64 `json:"deliveryFee,omitempty"`
	FreeDeliveryThreshold *float64 `json:"freeDeliveryThreshold,omitempty"`
}
