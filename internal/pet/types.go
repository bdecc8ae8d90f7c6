// Package pet defines the listing records, query filters and collaborator
// interfaces shared by the scraper, the stores and the HTTP API.
package pet

// Record is one scraped listing. Absent values serialize as null so that
// stored documents always carry the full field set.
type Record struct {
	Title       *string `json:"title" bson:"title"`
	Link        *string `json:"link" bson:"link"`
	Description *string `json:"description" bson:"description"`
	County      *string `json:"county" bson:"county"`
	City        *string `json:"city" bson:"city"`
	ImageURL    *string `json:"image_url" bson:"image_url"`
	Price       Price   `json:"price" bson:"price"`
	Category    *string `json:"category" bson:"category"`
	Subcategory *string `json:"subcategory" bson:"subcategory"`
	Species     *string `json:"species" bson:"species"`
	Breed       *string `json:"breed" bson:"breed"`
	Service     *string `json:"service" bson:"service"`
	Promoted    bool    `json:"promoted" bson:"promoted"`
}

// Price holds the normalized prices shown on a listing card. A discounted card
// fills AfterDiscount and BeforeDiscount; a regular card fills WithoutDiscount.
type Price struct {
	AfterDiscount   *float64 `json:"price_after_discount" bson:"price_after_discount"`
	BeforeDiscount  *float64 `json:"price_before_discount" bson:"price_before_discount"`
	WithoutDiscount *float64 `json:"price_without_any_discounts" bson:"price_without_any_discounts"`
}

// Effective returns the price a buyer pays, or nil when the card had none.
func (p Price) Effective() *float64 {
	if p.AfterDiscount != nil {
		return p.AfterDiscount
	}
	return p.WithoutDiscount
}

// LinkValue returns the record link or "" when absent.
func (r Record) LinkValue() string {
	return Value(r.Link)
}

// String returns a pointer to s, or nil when s is empty.
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Value dereferences p, returning "" for nil.
func Value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
