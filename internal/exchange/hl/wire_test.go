package hl

import (
	"bytes"
	"fmt"
	"math"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestFloatToWire(t *testing.T) {
	cases := []struct {
		in  float64
		out string
	}{
		{in: 1.23, out: "1.23"},
		{in: 0, out: "0"},
		{in: math.Copysign(0, -1), out: "0"},
		{in: 1.23000000, out: "1.23"},
		{in: -2.5, out: "-2.5"},
		{in: 207.83, out: "207.83"},
	}
	for _, tc := range cases {
		got, err := floatToWire(tc.in)
		if err != nil {
			t.Fatalf("unexpected error for %f: %v", tc.in, err)
		}
		if got != tc.out {
			t.Fatalf("expected %s, got %s", tc.out, got)
		}
	}
	if _, err := floatToWire(1.234567891); err == nil {
		t.Fatalf("expected rounding error")
	}
}

func TestNormalizePrice(t *testing.T) {
	cases := []struct {
		price      float64
		szDecimals int
		want       float64
	}{
		{price: 207.8312, szDecimals: 2, want: 207.83},
		{price: 95123.456, szDecimals: 5, want: 95123},
		{price: 1.23456789, szDecimals: 4, want: 1.23},
		{price: 3501.7, szDecimals: 4, want: 3501.7},
		{price: 0, szDecimals: 2, want: 0},
	}
	for _, tc := range cases {
		got := normalizePrice(tc.price, tc.szDecimals)
		if math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("normalizePrice(%v, %d): expected %v, got %v", tc.price, tc.szDecimals, tc.want, got)
		}
	}
}

func TestNormalizeSizeFloors(t *testing.T) {
	cases := []struct {
		size       float64
		szDecimals int
		want       float64
	}{
		{size: 2.4499999, szDecimals: 2, want: 2.44},
		{size: 0.699, szDecimals: 0, want: 0},
		{size: 1.5, szDecimals: 1, want: 1.5},
	}
	for _, tc := range cases {
		got := normalizeSize(tc.size, tc.szDecimals)
		if math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("normalizeSize(%v, %d): expected %v, got %v", tc.size, tc.szDecimals, tc.want, got)
		}
		if got > tc.size {
			t.Fatalf("normalizeSize(%v, %d) rounded up to %v", tc.size, tc.szDecimals, got)
		}
	}
}

func TestLimitOrderWireRequiresTif(t *testing.T) {
	if _, err := LimitOrderWire(1, true, 1, 100, false, "", ""); err == nil {
		t.Fatalf("expected tif error")
	}
}

func TestEncodeOrderActionDeterministic(t *testing.T) {
	order, err := LimitOrderWire(1, true, 2.5, 100.0, false, TifIoc, "")
	if err != nil {
		t.Fatalf("unexpected order wire error: %v", err)
	}
	action := OrderAction{Type: "order", Orders: []OrderWire{order}, Grouping: "na"}
	b1, err := EncodeOrderAction(action)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	b2, err := EncodeOrderAction(action)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	if !bytes.Equal(b1, b2) {
		t.Fatalf("expected deterministic encoding")
	}
	var decoded map[string]any
	if err := msgpack.Unmarshal(b1, &decoded); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if decoded["type"] != "order" {
		t.Fatalf("unexpected action type")
	}
	orders, ok := decoded["orders"].([]any)
	if !ok || len(orders) != 1 {
		t.Fatalf("expected 1 order")
	}
	orderMap, ok := orders[0].(map[string]any)
	if !ok {
		t.Fatalf("expected order map")
	}
	if orderMap["p"] != "100" {
		t.Fatalf("expected price 100, got %v", orderMap["p"])
	}
	if orderMap["s"] != "2.5" {
		t.Fatalf("expected size 2.5, got %v", orderMap["s"])
	}
}

func TestEncodeCancelAction(t *testing.T) {
	action := CancelAction{Type: "cancel", Cancels: []CancelWire{{Asset: 3, OrderID: 77738308}}}
	encoded, err := EncodeCancelAction(action)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	var decoded map[string]any
	if err := msgpack.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if decoded["type"] != "cancel" {
		t.Fatalf("unexpected action type %v", decoded["type"])
	}
	cancels, ok := decoded["cancels"].([]any)
	if !ok || len(cancels) != 1 {
		t.Fatalf("expected 1 cancel")
	}
	cancelMap, ok := cancels[0].(map[string]any)
	if !ok {
		t.Fatalf("expected cancel map")
	}
	if got := fmt.Sprint(cancelMap["o"]); got != "77738308" {
		t.Fatalf("expected oid 77738308, got %s", got)
	}
	if got := fmt.Sprint(cancelMap["a"]); got != "3" {
		t.Fatalf("expected asset 3, got %s", got)
	}
}
