package service

import (
	"time"

	authDomain "github.com/allisson/usp/internal/auth/domain"
)

// Per-factor score weights. The total is capped at 100.
const (
	scoreNewIP            = 10
	scoreNewCountry       = 20
	scoreImpossibleTravel = 30
	scoreVelocity         = 10
	scoreKnownBadIP       = 40
	scoreUnknownDevice    = 15
	scoreUnusualHour      = 5
)

// impossibleTravelWindow is the shortest plausible gap between logins from
// different countries.
const impossibleTravelWindow = time.Hour

// velocityWindow flags logins arriving faster than a human would retry.
const velocityWindow = time.Minute

// riskEngine implements RiskEngine. Evaluation is pure: the score depends
// only on the user's recorded history and the attempt's signals.
type riskEngine struct {
	badIPs map[string]struct{}
}

// NewRiskEngine creates a RiskEngine. badIPs is a deny list of source
// addresses that always contribute the known-bad factor.
func NewRiskEngine(badIPs []string) RiskEngine {
	deny := make(map[string]struct{}, len(badIPs))
	for _, ip := range badIPs {
		deny[ip] = struct{}{}
	}
	return &riskEngine{badIPs: deny}
}

func (r *riskEngine) Assess(
	user *authDomain.User,
	attempt authDomain.LoginAttempt,
	knownDevice bool,
) authDomain.RiskAssessment {
	var score uint
	var factors []string

	add := func(factor string, weight uint) {
		score += weight
		factors = append(factors, factor)
	}

	if _, bad := r.badIPs[attempt.IPAddress]; bad {
		add(authDomain.FactorKnownBadIP, scoreKnownBadIP)
	}

	// First-ever login carries no history; only request-side signals apply.
	if user.LastLoginAt != nil {
		sinceLast := attempt.At.Sub(*user.LastLoginAt)

		if user.LastLoginIP != "" && attempt.IPAddress != user.LastLoginIP {
			add(authDomain.FactorNewIP, scoreNewIP)
		}
		if user.LastLoginCountry != "" && attempt.Country != "" &&
			attempt.Country != user.LastLoginCountry {
			add(authDomain.FactorNewCountry, scoreNewCountry)
			if sinceLast < impossibleTravelWindow {
				add(authDomain.FactorImpossibleTravel, scoreImpossibleTravel)
			}
		}
		if sinceLast >= 0 && sinceLast < velocityWindow {
			add(authDomain.FactorVelocity, scoreVelocity)
		}
	}

	if !knownDevice && attempt.DeviceFingerprint != "" {
		add(authDomain.FactorUnknownDevice, scoreUnknownDevice)
	}

	hour := attempt.At.UTC().Hour()
	if hour < 5 {
		add(authDomain.FactorUnusualHour, scoreUnusualHour)
	}

	if score > 100 {
		score = 100
	}

	return authDomain.RiskAssessment{
		Level:   authDomain.LevelForScore(score),
		Score:   score,
		Factors: factors,
	}
}
