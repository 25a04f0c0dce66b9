package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Mirrors the shape of an order placement payload
type placeOrderPayload struct {
	ProductID     string `json:"product_id" validate:"required,uuid"`
	Quantity      int    `json:"quantity" validate:"required,gte=1,lte=100"`
	PaymentMethod string `json:"payment_method" validate:"required,oneof=card paypal bank_transfer cash_on_delivery"`
}

func decodePayload(t *testing.T, body map[string]interface{}) error {
	t.Helper()
	reqBody, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest("POST", "/api/orders", bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")

	var payload placeOrderPayload
	return DecodeAndValidate(req, &payload)
}

func TestProperty_MissingRequiredFieldsAreRejected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("missing required fields fail validation", prop.ForAll(
		func(includeProduct, includeQuantity, includeMethod bool) bool {
			body := make(map[string]interface{})
			if includeProduct {
				body["product_id"] = "0c7cbf68-5b71-4a39-9bbd-54a63ab06bd8"
			}
			if includeQuantity {
				body["quantity"] = 2
			}
			if includeMethod {
				body["payment_method"] = "card"
			}

			err := decodePayload(t, body)

			allPresent := includeProduct && includeQuantity && includeMethod
			if allPresent {
				return err == nil
			}
			return err != nil
		},
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_QuantityRangeIsEnforced(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("quantity outside 1..100 is rejected", prop.ForAll(
		func(quantity int) bool {
			body := map[string]interface{}{
				"product_id":     "0c7cbf68-5b71-4a39-9bbd-54a63ab06bd8",
				"quantity":       quantity,
				"payment_method": "card",
			}

			err := decodePayload(t, body)
			if quantity >= 1 && quantity <= 100 {
				return err == nil
			}
			return err != nil
		},
		gen.IntRange(-10, 200),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_PaymentMethodEnumIsEnforced(t *testing.T) {
	properties := gopter.NewProperties(nil)

	accepted := map[string]bool{
		"card": true, "paypal": true, "bank_transfer": true, "cash_on_delivery": true,
	}

	properties.Property("only known payment methods pass", prop.ForAll(
		func(method string) bool {
			body := map[string]interface{}{
				"product_id":     "0c7cbf68-5b71-4a39-9bbd-54a63ab06bd8",
				"quantity":       1,
				"payment_method": method,
			}

			err := decodePayload(t, body)
			if accepted[method] {
				return err == nil
			}
			return err != nil
		},
		gen.OneConstOf("card", "paypal", "bank_transfer", "cash_on_delivery", "bitcoin", "CARD", "check", ""),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestFormatValidationErrors(t *testing.T) {
	body := map[string]interface{}{
		"product_id":     "not-a-uuid",
		"quantity":       0,
		"payment_method": "bitcoin",
	}

	err := decodePayload(t, body)
	if err == nil {
		t.Fatal("expected validation error")
	}

	formatted := FormatValidationErrors(err)
	if len(formatted) == 0 {
		t.Fatal("expected formatted validation errors")
	}
	for _, ve := range formatted {
		if ve.Field == "" || ve.Message == "" {
			t.Errorf("validation error missing field or message: %+v", ve)
		}
	}
}

func TestDecodeAndValidate_MalformedJSON(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/orders", bytes.NewReader([]byte(`{"quantity":`)))
	req.Header.Set("Content-Type", "application/json")

	var payload placeOrderPayload
	if err := DecodeAndValidate(req, &payload); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
