package pricing

import "github.com/angelmondragon/storefront-backend/pkg/config"

// ShippingPolicy is a flat fee waived once the subtotal strictly exceeds the threshold.
type ShippingPolicy struct {
	FreeShippingThreshold int64
	StandardShippingFee   int64
}

// NewShippingPolicy builds the policy from configuration.
func NewShippingPolicy(cfg config.PricingConfig) ShippingPolicy {
	return ShippingPolicy{
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		StandardShippingFee:   cfg.StandardShippingFee,
	}
}

// ShippingFee returns the fee owed for subtotal.
func (p ShippingPolicy) ShippingFee(subtotal int64) int64 {
	if subtotal > p.FreeShippingThreshold {
		return 0
	}
	return p.StandardShippingFee
}
