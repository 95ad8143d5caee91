package domain

import "time"

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Risk factor names reported in RiskAssessment.Factors.
const (
	FactorNewIP            = "new_ip"
	FactorNewCountry       = "new_country"
	FactorImpossibleTravel = "impossible_travel"
	FactorVelocity         = "velocity"
	FactorKnownBadIP       = "known_bad_ip"
	FactorUnknownDevice    = "unknown_device"
	FactorUnusualHour      = "unusual_hour"
)

// LoginAttempt carries the request-side signals the risk engine scores.
type LoginAttempt struct {
	IPAddress         string
	Country           string
	DeviceFingerprint string
	At                time.Time
}

// RiskAssessment is the risk engine output for one login attempt.
type RiskAssessment struct {
	Level   RiskLevel
	Score   uint
	Factors []string
}

// LevelForScore maps a 0..100 score onto a level.
func LevelForScore(score uint) RiskLevel {
	switch {
	case score < 25:
		return RiskLow
	case score < 50:
		return RiskMedium
	case score < 75:
		return RiskHigh
	default:
		return RiskCritical
	}
}
