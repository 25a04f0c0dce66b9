package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalizedTextGet(t *testing.T) {
	text := LocalizedText{"en": "Keyboard", "de": "Tastatur"}

	assert.Equal(t, "Tastatur", text.Get("de"))
	assert.Equal(t, "Keyboard", text.Get("en"))
	// Unknown locale falls back to the default
	assert.Equal(t, "Keyboard", text.Get("fr"))

	// No default: any value beats nothing
	noDefault := LocalizedText{"de": "Tastatur"}
	assert.Equal(t, "Tastatur", noDefault.Get("fr"))

	var empty LocalizedText
	assert.Equal(t, "", empty.Get("en"))
}

func TestLocalizedTextScanValue(t *testing.T) {
	original := LocalizedText{"en": "Lamp", "es": "Lámpara"}

	value, err := original.Value()
	require.NoError(t, err)

	var scanned LocalizedText
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, original, scanned)

	// Strings and NULLs scan too
	require.NoError(t, scanned.Scan(`{"en":"Desk"}`))
	assert.Equal(t, "Desk", scanned.Get("en"))

	require.NoError(t, scanned.Scan(nil))
	assert.Empty(t, scanned)

	assert.Error(t, scanned.Scan(42))

	var nilText LocalizedText
	value, err = nilText.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), value)
}

func TestProductCategoryValid(t *testing.T) {
	for _, c := range []ProductCategory{CategoryElectronics, CategoryClothing, CategoryBooks, CategoryHome, CategorySports, CategoryOther} {
		assert.True(t, c.Valid())
	}
	for _, c := range []ProductCategory{"", "toys", "Electronics"} {
		assert.False(t, c.Valid())
	}
}

func TestRefreshTag(t *testing.T) {
	tests := []struct {
		name  string
		stock int
		tag   ProductTag
		want  ProductTag
	}{
		{"zero stock forces out of stock", 0, TagPopular, TagOutOfStock},
		{"zero stock keeps out of stock", 0, TagOutOfStock, TagOutOfStock},
		{"restock clears out of stock", 5, TagOutOfStock, TagNone},
		{"restock keeps marketing tag", 5, TagPromotion, TagPromotion},
		{"unknown tag resets to none", 3, ProductTag("LEGACY"), TagNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Product{Stock: tt.stock, Tag: tt.tag}
			p.RefreshTag()
			assert.Equal(t, tt.want, p.Tag)
		})
	}
}

func TestLowStock(t *testing.T) {
	p := &Product{Stock: 3, MinStock: 5}
	assert.True(t, p.LowStock())

	p.Stock = 5
	assert.False(t, p.LowStock())

	p.MinStock = 0
	assert.False(t, p.LowStock())
}
