package lending

import (
	"github.com/shopspring/decimal"
)

// ClassifyTier maps a cumulative contribution total to a tier.
// Premium applies at or above the premium minimum; everything else is Basic,
// including totals below the basic borrowing minimum.
func (e *Engine) ClassifyTier(contributionTotal decimal.Decimal) (Tier, error) {
	if contributionTotal.IsNegative() {
		return "", ErrNegativeContribution
	}
	if contributionTotal.GreaterThanOrEqual(e.policy.Premium.MinContribution) {
		return TierPremium, nil
	}
	return TierBasic, nil
}
