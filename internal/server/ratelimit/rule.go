package ratelimit

import (
	"fmt"
	"time"

	"github.com/ulule/limiter/v3"
)

// Named rules, one per operation class so a heavy consumer of one class cannot starve another
const (
	RuleAPI     = "api"
	RuleStream  = "stream"
	RuleSegment = "segment"
	RuleUpload  = "upload"
	RuleSearch  = "search"
)

// Rule allows Limit requests per Period and key
type Rule struct {
	Name   string
	Limit  int64
	Period time.Duration
}

// ParseRule reads a rate in the `<limit>-<period>` notation, e.g. "300-M" or "1000-H"
func ParseRule(name, formatted string) (Rule, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", name, err)
	}
	if rate.Limit < 1 {
		return Rule{}, fmt.Errorf("rule %s: limit must be >= 1", name)
	}
	return Rule{Name: name, Limit: rate.Limit, Period: rate.Period}, nil
}

func (r Rule) String() string {
	return fmt.Sprintf("%s(%d/%s)", r.Name, r.Limit, r.Period)
}
