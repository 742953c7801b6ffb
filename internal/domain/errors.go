package domain

import "errors"

var (
	// ErrInvalidDomainInput is returned when a raw domain cannot be normalized.
	ErrInvalidDomainInput = errors.New("invalid domain input")

	// ErrRuleLimitExceeded is surfaced when the filter engine refuses the rule set for capacity.
	ErrRuleLimitExceeded = errors.New("rule limit exceeded")

	// ErrCapacityExceeded is raised by filter engines that cannot hold more rules.
	ErrCapacityExceeded = errors.New("filter engine capacity exceeded")

	// ErrCalendarUnauthorized means the calendar token is missing, invalid or expired.
	ErrCalendarUnauthorized = errors.New("calendar unauthorized")

	// ErrBudgetExhausted means no exception time is left for now.
	ErrBudgetExhausted = errors.New("exception budget exhausted")

	ErrProfileNotFound = errors.New("profile not found")
	ErrNotFound        = errors.New("not found")
)
