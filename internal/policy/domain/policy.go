package domain

import (
	"net/netip"
	"time"

	"github.com/google/uuid"
)

// PolicyEffect is what a matching policy does to the decision.
type PolicyEffect string

const (
	EffectAllow PolicyEffect = "allow"
	EffectDeny  PolicyEffect = "deny"
)

// AccessPolicy is a stored ABAC policy. Document holds the policy source in
// the expression language compiled by the policy service; the compiled form
// lives only in memory.
type AccessPolicy struct {
	ID        uuid.UUID
	Name      string
	Document  string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EvalInput is everything a policy evaluation may inspect. Evaluation is
// pure: no clock or network access happens inside Evaluate.
type EvalInput struct {
	UserID   uuid.UUID
	Roles    []string
	Resource string
	Action   string
	IP       netip.Addr
	Now      time.Time
	Tags     map[string]string
}

// Decision is the authorization outcome for one check.
type Decision struct {
	Allowed bool
	// Reason names the rule that decided: "rbac", a policy name, or
	// "no-grant".
	Reason string
}

// CompiledPolicy is a policy document after compilation. Implementations are
// produced by the policy service compiler.
type CompiledPolicy interface {
	// Name returns the source policy name.
	Name() string
	// Effect returns what a match means.
	Effect() PolicyEffect
	// Matches reports whether every condition holds for the input.
	Matches(input EvalInput) bool
}
