package hl

import (
	"encoding/json"
	"testing"
)

func decodeResponse(t *testing.T, raw string) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestOrderIDFromResponse(t *testing.T) {
	resp := decodeResponse(t, `{
		"status": "ok",
		"response": {
			"type": "order",
			"data": {"statuses": [{"resting": {"oid": 77738308}}]}
		}
	}`)
	if got := OrderIDFromResponse(resp); got != "77738308" {
		t.Fatalf("expected 77738308, got %q", got)
	}
	if got := OrderIDFromResponse(nil); got != "" {
		t.Fatalf("expected empty id for nil response, got %q", got)
	}
}

func TestOrderIDFromFilledResponse(t *testing.T) {
	resp := decodeResponse(t, `{
		"status": "ok",
		"response": {
			"type": "order",
			"data": {"statuses": [{"filled": {"totalSz": "0.5", "avgPx": "207.8", "oid": 9001}}]}
		}
	}`)
	if got := OrderIDFromResponse(resp); got != "9001" {
		t.Fatalf("expected 9001, got %q", got)
	}
}

func TestResponseError(t *testing.T) {
	resp := decodeResponse(t, `{
		"status": "ok",
		"response": {
			"type": "order",
			"data": {"statuses": [{"error": "Order must have minimum value of $10."}]}
		}
	}`)
	if got := ResponseError(resp); got != "Order must have minimum value of $10." {
		t.Fatalf("unexpected error string %q", got)
	}

	clean := decodeResponse(t, `{
		"status": "ok",
		"response": {
			"type": "order",
			"data": {"statuses": [{"resting": {"oid": 1}}]}
		}
	}`)
	if got := ResponseError(clean); got != "" {
		t.Fatalf("expected no error, got %q", got)
	}
}
