package catalog

import (
	"encoding/json"
	"testing"
)

var orderSchema = json.RawMessage(`{
	"type": "object",
	"required": ["order_id", "amount"],
	"properties": {
		"order_id": {"type": "string"},
		"amount": {"type": "number", "minimum": 0}
	}
}`)

func TestValidate_EmptySchemaSkips(t *testing.T) {
	v := NewValidator()
	if err := v.Validate(nil, map[string]any{"anything": true}); err != nil {
		t.Fatalf("empty schema should skip validation, got %v", err)
	}
}

func TestValidate_ValidPayload(t *testing.T) {
	v := NewValidator()
	payload := map[string]any{"order_id": "ord_123", "amount": 99.5}
	if err := v.Validate(orderSchema, payload); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
}

func TestValidate_MissingRequiredField(t *testing.T) {
	v := NewValidator()
	payload := map[string]any{"order_id": "ord_123"}
	if err := v.Validate(orderSchema, payload); err == nil {
		t.Fatal("payload missing required field should fail validation")
	}
}

func TestValidate_WrongType(t *testing.T) {
	v := NewValidator()
	payload := map[string]any{"order_id": 42, "amount": 10}
	if err := v.Validate(orderSchema, payload); err == nil {
		t.Fatal("payload with wrong field type should fail validation")
	}
}

func TestValidate_StructPayload(t *testing.T) {
	v := NewValidator()
	payload := struct {
		OrderID string  `json:"order_id"`
		Amount  float64 `json:"amount"`
	}{OrderID: "ord_123", Amount: 10}

	if err := v.Validate(orderSchema, payload); err != nil {
		t.Fatalf("struct payload should validate after normalization: %v", err)
	}
}

func TestValidate_RawJSONPayload(t *testing.T) {
	v := NewValidator()

	if err := v.Validate(orderSchema, json.RawMessage(`{"order_id":"ord_1","amount":5}`)); err != nil {
		t.Fatalf("raw JSON payload should validate: %v", err)
	}
	if err := v.Validate(orderSchema, json.RawMessage(`{"amount":5}`)); err == nil {
		t.Fatal("invalid raw JSON payload should fail validation")
	}
}

func TestValidate_BadSchema(t *testing.T) {
	v := NewValidator()
	if err := v.Validate(json.RawMessage(`{not json`), map[string]any{}); err == nil {
		t.Fatal("malformed schema should error")
	}
}

func TestValidate_CachesCompiledSchemas(t *testing.T) {
	v := NewValidator()
	payload := map[string]any{"order_id": "ord_1", "amount": 1}

	for range 3 {
		if err := v.Validate(orderSchema, payload); err != nil {
			t.Fatal(err)
		}
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if len(v.cache) != 1 {
		t.Fatalf("expected 1 cached schema, got %d", len(v.cache))
	}
}
