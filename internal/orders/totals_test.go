package orders

import (
	"math"
	"testing"
)

func TestComputeTotals(t *testing.T) {
	lines := []OrderLine{
		{ProductID: "p1", Quantity: 3, UnitPrice: 29.99},
	}
	totals := ComputeTotals(lines)

	if math.Abs(totals.Subtotal-89.97) > 1e-9 {
		t.Fatalf("unexpected subtotal: %v", totals.Subtotal)
	}
	if math.Abs(totals.Tax-4.4985) > 1e-9 {
		t.Fatalf("unexpected tax: %v", totals.Tax)
	}
	if totals.Shipping != 10.00 {
		t.Fatalf("unexpected shipping: %v", totals.Shipping)
	}
	if math.Abs(totals.Total-104.4685) > 1e-9 {
		t.Fatalf("unexpected total: %v", totals.Total)
	}
}

func TestComputeTotals_MultipleLines(t *testing.T) {
	lines := []OrderLine{
		{ProductID: "p1", Quantity: 1, UnitPrice: 10.00},
		{ProductID: "p2", Quantity: 2, UnitPrice: 5.00},
	}
	totals := ComputeTotals(lines)

	if math.Abs(totals.Subtotal-20.00) > 1e-9 {
		t.Fatalf("unexpected subtotal: %v", totals.Subtotal)
	}
	if math.Abs(totals.Tax-1.00) > 1e-9 {
		t.Fatalf("unexpected tax: %v", totals.Tax)
	}
	if math.Abs(totals.Total-31.00) > 1e-9 {
		t.Fatalf("unexpected total: %v", totals.Total)
	}
}

func TestComputeTotals_NoLines(t *testing.T) {
	totals := ComputeTotals(nil)
	if totals.Subtotal != 0 || totals.Tax != 0 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
	if totals.Total != ShippingCost {
		t.Fatalf("empty order still carries shipping, got %v", totals.Total)
	}
}

func TestSignature_Deterministic(t *testing.T) {
	totals := ComputeTotals([]OrderLine{{Quantity: 3, UnitPrice: 29.99}})

	first := totals.Signature()
	second := totals.Signature()
	if first != second {
		t.Fatalf("signature not deterministic: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected sha-256 hex digest, got %d chars", len(first))
	}
	if !VerifySignature(totals, first) {
		t.Fatalf("signature must verify against its own totals")
	}
}

func TestSignature_DetectsTampering(t *testing.T) {
	totals := ComputeTotals([]OrderLine{{Quantity: 3, UnitPrice: 29.99}})
	sig := totals.Signature()

	tampered := totals
	tampered.Total -= 5
	if VerifySignature(tampered, sig) {
		t.Fatalf("tampered total must not verify")
	}

	tampered = totals
	tampered.Tax = 0
	if VerifySignature(tampered, sig) {
		t.Fatalf("tampered tax must not verify")
	}
}
