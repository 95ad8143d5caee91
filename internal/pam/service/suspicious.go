package service

import (
	"regexp"
)

// SuspiciousRule flags session commands matching a pattern.
type SuspiciousRule struct {
	Name    string
	Pattern *regexp.Regexp
}

// DefaultSuspiciousRules covers destructive and privilege-widening commands
// across the supported platforms.
func DefaultSuspiciousRules() []SuspiciousRule {
	return []SuspiciousRule{
		{Name: "drop-object", Pattern: regexp.MustCompile(`(?i)\bdrop\s+(table|database|user|schema)\b`)},
		{Name: "truncate", Pattern: regexp.MustCompile(`(?i)\btruncate\s+table\b`)},
		{Name: "grant-all", Pattern: regexp.MustCompile(`(?i)\bgrant\s+all\b`)},
		{Name: "mass-delete", Pattern: regexp.MustCompile(`(?i)\bdelete\s+from\s+\S+\s*(;|$)`)},
		{Name: "recursive-rm", Pattern: regexp.MustCompile(`\brm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r)\b`)},
		{Name: "world-writable", Pattern: regexp.MustCompile(`\bchmod\s+([0-7])?77[0-7]?\b`)},
		{Name: "shadow-read", Pattern: regexp.MustCompile(`/etc/shadow\b`)},
		{Name: "history-wipe", Pattern: regexp.MustCompile(`\bhistory\s+-c\b|\bunset\s+HISTFILE\b`)},
	}
}

// SuspiciousDetector evaluates commands against a rule set.
type SuspiciousDetector struct {
	rules []SuspiciousRule
}

// NewSuspiciousDetector creates a detector; a nil rule set uses the defaults.
func NewSuspiciousDetector(rules []SuspiciousRule) *SuspiciousDetector {
	if rules == nil {
		rules = DefaultSuspiciousRules()
	}
	return &SuspiciousDetector{rules: rules}
}

// Evaluate returns the names of all rules the command trips.
func (d *SuspiciousDetector) Evaluate(command string) []string {
	var matched []string
	for _, rule := range d.rules {
		if rule.Pattern.MatchString(command) {
			matched = append(matched, rule.Name)
		}
	}
	return matched
}
