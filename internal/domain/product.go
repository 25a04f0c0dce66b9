package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultLocale is the fallback locale for localized fields
const DefaultLocale = "en"

// LocalizedText maps a locale code to a translated string.
// It is stored as a JSONB column.
type LocalizedText map[string]string

// Get returns the value for the given locale, falling back to the
// default locale and then to any available value.
func (t LocalizedText) Get(locale string) string {
	if v, ok := t[locale]; ok {
		return v
	}
	if v, ok := t[DefaultLocale]; ok {
		return v
	}
	for _, v := range t {
		return v
	}
	return ""
}

// Value implements driver.Valuer so LocalizedText can be written as JSONB
func (t LocalizedText) Value() (driver.Value, error) {
	if t == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner so LocalizedText can be read from JSONB
func (t *LocalizedText) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*t = LocalizedText{}
		return nil
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return fmt.Errorf("unsupported type %T for LocalizedText", src)
	}
}

// ProductCategory is the fixed set of catalog categories
type ProductCategory string

const (
	CategoryElectronics ProductCategory = "electronics"
	CategoryClothing    ProductCategory = "clothing"
	CategoryBooks       ProductCategory = "books"
	CategoryHome        ProductCategory = "home"
	CategorySports      ProductCategory = "sports"
	CategoryOther       ProductCategory = "other"
)

// Valid reports whether the category is one of the fixed set
func (c ProductCategory) Valid() bool {
	switch c {
	case CategoryElectronics, CategoryClothing, CategoryBooks, CategoryHome, CategorySports, CategoryOther:
		return true
	}
	return false
}

// ProductTag is the derived marketing/availability tag on a product
type ProductTag string

const (
	TagNone       ProductTag = "NONE"
	TagPopular    ProductTag = "POPULAR"
	TagNew        ProductTag = "NEW"
	TagPromotion  ProductTag = "PROMOTION"
	TagOutOfStock ProductTag = "OUT_OF_STOCK"
)

// Valid reports whether the tag is one of the known values
func (t ProductTag) Valid() bool {
	switch t {
	case TagNone, TagPopular, TagNew, TagPromotion, TagOutOfStock:
		return true
	}
	return false
}

// Product represents a product in the catalog
type Product struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Name        LocalizedText   `json:"name" db:"name"`
	Description LocalizedText   `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Category    ProductCategory `json:"category" db:"category"`
	Tag         ProductTag      `json:"tag" db:"tag"`
	ImageURL    string          `json:"image_url" db:"image_url"`
	Stock       int             `json:"stock" db:"stock"`
	MinStock    int             `json:"min_stock" db:"min_stock"`
	ViewCount   int             `json:"view_count" db:"view_count"`
	SalesCount  int             `json:"sales_count" db:"sales_count"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// RefreshTag re-derives the availability tag from the current stock level.
// OUT_OF_STOCK always wins at zero stock; leaving zero stock clears it.
func (p *Product) RefreshTag() {
	if p.Stock == 0 {
		p.Tag = TagOutOfStock
		return
	}
	if p.Tag == TagOutOfStock || !p.Tag.Valid() {
		p.Tag = TagNone
	}
}

// LowStock reports whether stock has fallen below the configured threshold
func (p *Product) LowStock() bool {
	return p.Stock < p.MinStock
}
