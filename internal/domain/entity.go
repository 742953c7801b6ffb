// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// Reserved rule window. Compiled rule IDs live in [RuleIDBase, RuleIDBase+MaxCompiledRules).
const (
	RuleIDBase       = 1000
	MaxCompiledRules = 100
)

// Rule priorities understood by the filter engine.
const (
	PriorityDomain   = 1
	PriorityBlockAll = 2
)

// ManualProfileName is the reserved profile used for manual focus when no target is chosen.
const ManualProfileName = "Manual"

// Profile is a named focus mode. An empty Keyword means manual-only.
type Profile struct {
	Name    string `json:"name" yaml:"name"`
	Keyword string `json:"keyword,omitempty" yaml:"keyword,omitempty"`
}

// HasTrigger reports whether the profile can be activated by a calendar event.
func (p Profile) HasTrigger() bool {
	return p.Keyword != ""
}

// RuleKind discriminates the persisted BlockingRule variants.
type RuleKind string

const (
	RuleKindDomain   RuleKind = "domain"
	RuleKindBlockAll RuleKind = "blockAll"
)

// AllowedVideo is a YouTube video that stays reachable while its domain is blocked.
type AllowedVideo struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// RuleRecord is the persisted, flat form of a blocking rule.
// The policy package turns it into a typed rule.
type RuleRecord struct {
	ID            string         `json:"id" yaml:"id,omitempty"`
	Kind          RuleKind       `json:"kind" yaml:"kind"`
	Profiles      []string       `json:"profiles" yaml:"profiles"`
	Message       string         `json:"message,omitempty" yaml:"message,omitempty"`
	DomainSpec    string         `json:"domainSpec,omitempty" yaml:"domains,omitempty"`
	AllowedVideos []AllowedVideo `json:"allowedVideos,omitempty" yaml:"allowed_videos,omitempty"`
}

// Configuration is everything the user configures, stored in the sync namespace.
type Configuration struct {
	Enabled       bool         `json:"enabled" yaml:"enabled"`
	GlobalMessage string       `json:"globalMessage,omitempty" yaml:"global_message,omitempty"`
	Profiles      []Profile    `json:"profiles" yaml:"profiles"`
	Rules         []RuleRecord `json:"rules" yaml:"rules"`
}

// RuleCondition selects the navigations a compiled rule applies to.
// Exactly one of URLFilter and RegexFilter is set.
type RuleCondition struct {
	URLFilter     string   `json:"urlFilter,omitempty"`
	RegexFilter   string   `json:"regexFilter,omitempty"`
	ResourceTypes []string `json:"resourceTypes"`
}

// RuleAction is what the engine does on a match.
type RuleAction struct {
	Type        string `json:"type"`
	RedirectURL string `json:"redirectUrl"`
}

// CompiledFilterRule is the engine-facing rule.
type CompiledFilterRule struct {
	ID        int           `json:"id"`
	Priority  int           `json:"priority"`
	Condition RuleCondition `json:"condition"`
	Action    RuleAction    `json:"action"`
}

// InReservedWindow reports whether id belongs to the window this module owns.
func InReservedWindow(id int) bool {
	return id >= RuleIDBase && id < RuleIDBase+MaxCompiledRules
}

// RuleChanges is one atomic replace request for the filter engine.
type RuleChanges struct {
	RemoveIDs []int                `json:"removeRuleIds"`
	AddRules  []CompiledFilterRule `json:"addRules"`
}

// ExceptionState tracks exception usage for the current local day.
type ExceptionState struct {
	LastResetDate string `json:"lastResetDate"` // YYYY-MM-DD, local time
	DayUsedMs     int64  `json:"dayUsedMs"`
	NightUsedMs   int64  `json:"nightUsedMs"`
}

// FocusState is the state machine's current state.
type FocusState string

const (
	StateDisabled         FocusState = "disabled"
	StateInactive         FocusState = "inactive"
	StateManualFocus      FocusState = "manual_focus"
	StateCalendarFocus    FocusState = "calendar_focus"
	StateExceptionGranted FocusState = "exception_granted"
	StateError            FocusState = "error"
)

// FocusSession is the authoritative focus decision, persisted for restart survival.
type FocusSession struct {
	State              FocusState `json:"state"`
	ActiveProfile      string     `json:"activeProfile,omitempty"` // empty = none
	ManualProfile      string     `json:"manualProfile,omitempty"`
	ManualFocusEndTime *time.Time `json:"manualFocusEndTime,omitempty"`
	ExceptionEndTime   *time.Time `json:"exceptionEndTime,omitempty"`
	StatusText         string     `json:"statusText"`
	AuthRequired       bool       `json:"authRequired,omitempty"`
	EvaluatedAt        time.Time  `json:"evaluatedAt"`
}

// ManualActive reports whether a manual focus timer is running at now.
func (s *FocusSession) ManualActive(now time.Time) bool {
	return s.ManualFocusEndTime != nil && now.Before(*s.ManualFocusEndTime)
}

// ExceptionActive reports whether an exception is running at now.
func (s *FocusSession) ExceptionActive(now time.Time) bool {
	return s.ExceptionEndTime != nil && now.Before(*s.ExceptionEndTime)
}

// CalendarEvent is one event returned by the calendar source.
// All-day events carry AllDay=true with Start/End at local midnight; End is exclusive.
type CalendarEvent struct {
	Summary string
	Start   time.Time
	End     time.Time
	AllDay  bool
}

// ActiveAt reports whether the event covers now.
func (e CalendarEvent) ActiveAt(now time.Time) bool {
	return !now.Before(e.Start) && now.Before(e.End)
}

// TimeWindow bounds a calendar query.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Transition records one state change for the history log.
type Transition struct {
	At          time.Time
	FromState   FocusState
	ToState     FocusState
	FromProfile string
	ToProfile   string
	StatusText  string
}

// Daemon represents the running sitemon daemon process.
type Daemon struct {
	PID        int
	StartedAt  time.Time
	AppVersion string
}

// RegistryEntry is the persisted daemon registration.
type RegistryEntry struct {
	Version       int    `json:"version"`
	PID           int    `json:"pid"`
	StartedAt     int64  `json:"started_at"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	AppVersion    string `json:"app_version,omitempty"`
}
