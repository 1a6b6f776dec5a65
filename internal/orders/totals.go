package orders

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

const (
	// TaxRate is applied to the subtotal of every order.
	TaxRate = 0.05
	// ShippingCost is a flat fee per order.
	ShippingCost = 10.00
)

// Totals is the monetary breakdown of an order.
type Totals struct {
	Subtotal float64
	Tax      float64
	Shipping float64
	Total    float64
}

// ComputeTotals derives the breakdown from the order lines.
func ComputeTotals(lines []OrderLine) Totals {
	var subtotal float64
	for _, line := range lines {
		subtotal += line.UnitPrice * float64(line.Quantity)
	}
	tax := subtotal * TaxRate
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: ShippingCost,
		Total:    subtotal + tax + ShippingCost,
	}
}

// canonicalTotals fixes the JSON key order so the signature is reproducible.
// Field order matches the alphabetical key ordering of the encoded object.
type canonicalTotals struct {
	Shipping float64 `json:"shipping"`
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// Signature returns a SHA-256 hex digest over the canonical encoding of the
// breakdown. Recomputing it from stored values detects tampering.
func (t Totals) Signature() string {
	payload, err := json.Marshal(canonicalTotals{
		Shipping: t.Shipping,
		Subtotal: t.Subtotal,
		Tax:      t.Tax,
		Total:    t.Total,
	})
	if err != nil {
		// Marshalling four floats cannot fail.
		panic(err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// VerifySignature recomputes the signature and compares it to the stored one.
func VerifySignature(t Totals, signature string) bool {
	return t.Signature() == signature
}
