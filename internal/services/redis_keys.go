package services

import "time"

const (
	KeyLatestAnchor   = "anchor:latest"
	KeyFinalizedRound = "round:%s"
	KeyRateLimit      = "ratelimit:%d:%s"
	KeyBetPatterns    = "patterns:%d:bets"

	TTLFinalizedRound = 24 * time.Hour

	DefaultRateLimitBets = 30 // Max 30 bets per minute
	BetPatternHistory    = 50
)
