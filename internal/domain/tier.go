package domain

type TierKind string

const (
	TierPercentage TierKind = "percentage"
	TierPromotion  TierKind = "promotion"
)

// DiscountTier is one entry of the ordered reward catalog. Position defines
// which tier applies at which stamp count; Value is meaningful only for the
// percentage kind.
type DiscountTier struct {
	ID          int64    `json:"id"`
	Position    int      `json:"position"`
	Description string   `json:"description"`
	Kind        TierKind `json:"kind"`
	Value       float64  `json:"value"`
	Active      bool     `json:"active"`
}

// NoDiscount is the sentinel returned when the catalog is empty.
var NoDiscount = DiscountTier{
	Description: "NO DISCOUNT",
	Kind:        TierPromotion,
}

// DiscountForStampCount selects the tier unlocked by n stamps: tier 0
// applies at zero stamps, advancing one tier per stamp, capped at the last
// tier for any count at or beyond the catalog length.
func DiscountForStampCount(tiers []DiscountTier, n int) DiscountTier {
	if len(tiers) == 0 {
		return NoDiscount
	}
	if n < 0 {
		n = 0
	}
	if n >= len(tiers) {
		n = len(tiers) - 1
	}
	return tiers[n]
}
