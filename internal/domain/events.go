package domain

const (
	CanonicalEventClassDomain        = "domain"
	CanonicalEventClassAnalyticsOnly = "analytics_only"
	CanonicalEventClassOps           = "ops"
)

// Inbound events.
const (
	EventUserRegistered = "user.registered"
	EventOrderCompleted = "order.completed"
	EventProductViewed  = "product.viewed"
)

// Outbound events, written to the outbox inside the ledger unit that produced them.
const (
	EventPointsCredited      = "loyalty.points_credited"
	EventTierUpgraded        = "loyalty.tier_upgraded"
	EventPointsRedeemed      = "loyalty.points_redeemed"
	EventRedemptionUsed      = "loyalty.redemption_used"
	EventRedemptionCancelled = "loyalty.redemption_cancelled"
)
