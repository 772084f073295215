package auth

// Scopes accepted by the insights API.
const (
	ScopeInsightsRead   = "insights:read"
	ScopeInsightsReplay = "insights:replay"
)
