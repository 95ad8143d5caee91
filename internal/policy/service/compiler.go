// Package service implements the access policy compiler. Policy documents
// are line-oriented:
//
//	effect deny
//	resource pam/safe/prod/*
//	action checkout
//	when hour not between 8 and 18
//	when ip in 203.0.113.0/24
//	when tag env == prod
//
// "effect" is required; "resource" and "action" default to "*"; "when" lines
// are conjunctive. Blank lines and "#" comments are ignored. Documents are
// compiled once at load; evaluation of the compiled form is pure.
package service

import (
	"net/netip"
	"strconv"
	"strings"

	apperrors "github.com/allisson/usp/internal/errors"
	policyDomain "github.com/allisson/usp/internal/policy/domain"
)

type condition func(input policyDomain.EvalInput) bool

// compiledPolicy implements policyDomain.CompiledPolicy.
type compiledPolicy struct {
	name       string
	effect     policyDomain.PolicyEffect
	resource   string
	action     string
	conditions []condition
}

func (c *compiledPolicy) Name() string                      { return c.name }
func (c *compiledPolicy) Effect() policyDomain.PolicyEffect { return c.effect }

func (c *compiledPolicy) Matches(input policyDomain.EvalInput) bool {
	if c.action != "*" && c.action != input.Action {
		return false
	}
	if !policyDomain.MatchResource(c.resource, input.Resource) {
		return false
	}
	for _, cond := range c.conditions {
		if !cond(input) {
			return false
		}
	}
	return true
}

// Compile parses a policy document into its evaluatable form.
func Compile(name, document string) (policyDomain.CompiledPolicy, error) {
	policy := &compiledPolicy{
		name:     name,
		resource: "*",
		action:   "*",
	}

	for lineNo, raw := range strings.Split(document, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		directive, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		var err error
		switch directive {
		case "effect":
			switch rest {
			case string(policyDomain.EffectAllow):
				policy.effect = policyDomain.EffectAllow
			case string(policyDomain.EffectDeny):
				policy.effect = policyDomain.EffectDeny
			default:
				err = apperrors.Wrapf(apperrors.ErrInvalidInput, "unknown effect %q", rest)
			}
		case "resource":
			policy.resource = rest
		case "action":
			policy.action = rest
		case "when":
			var cond condition
			cond, err = compileCondition(rest)
			if err == nil {
				policy.conditions = append(policy.conditions, cond)
			}
		default:
			err = apperrors.Wrapf(apperrors.ErrInvalidInput, "unknown directive %q", directive)
		}
		if err != nil {
			return nil, apperrors.Wrapf(err, "policy %q line %d", name, lineNo+1)
		}
	}

	if policy.effect == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "policy %q has no effect directive", name)
	}

	return policy, nil
}

func compileCondition(expr string) (condition, error) {
	fields := strings.Fields(expr)
	if len(fields) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "empty condition")
	}

	switch fields[0] {
	case "hour":
		return compileHourCondition(fields[1:])
	case "ip":
		return compileIPCondition(fields[1:])
	case "tag":
		return compileTagCondition(fields[1:])
	default:
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "unknown condition %q", fields[0])
	}
}

// compileHourCondition parses "[not] between A and B". The range is
// inclusive of A and exclusive of B and may wrap midnight.
func compileHourCondition(fields []string) (condition, error) {
	negate := false
	if len(fields) > 0 && fields[0] == "not" {
		negate = true
		fields = fields[1:]
	}
	if len(fields) != 4 || fields[0] != "between" || fields[2] != "and" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "hour condition wants: hour [not] between A and B")
	}

	from, err := parseHour(fields[1])
	if err != nil {
		return nil, err
	}
	to, err := parseHour(fields[3])
	if err != nil {
		return nil, err
	}

	return func(input policyDomain.EvalInput) bool {
		hour := input.Now.UTC().Hour()
		var inRange bool
		if from <= to {
			inRange = hour >= from && hour < to
		} else {
			inRange = hour >= from || hour < to
		}
		return inRange != negate
	}, nil
}

func parseHour(s string) (int, error) {
	hour, err := strconv.Atoi(s)
	if err != nil || hour < 0 || hour > 23 {
		return 0, apperrors.Wrapf(apperrors.ErrInvalidInput, "invalid hour %q", s)
	}
	return hour, nil
}

// compileIPCondition parses "[not] in CIDR".
func compileIPCondition(fields []string) (condition, error) {
	negate := false
	if len(fields) > 0 && fields[0] == "not" {
		negate = true
		fields = fields[1:]
	}
	if len(fields) != 2 || fields[0] != "in" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "ip condition wants: ip [not] in CIDR")
	}

	prefix, err := netip.ParsePrefix(fields[1])
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "invalid cidr %q", fields[1])
	}

	return func(input policyDomain.EvalInput) bool {
		contains := input.IP.IsValid() && prefix.Contains(input.IP)
		return contains != negate
	}, nil
}

// compileTagCondition parses "key == value" or "key != value".
func compileTagCondition(fields []string) (condition, error) {
	if len(fields) != 3 || (fields[1] != "==" && fields[1] != "!=") {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "tag condition wants: tag KEY ==|!= VALUE")
	}

	key, op, value := fields[0], fields[1], fields[2]
	return func(input policyDomain.EvalInput) bool {
		equal := input.Tags[key] == value
		if op == "!=" {
			return !equal
		}
		return equal
	}, nil
}
