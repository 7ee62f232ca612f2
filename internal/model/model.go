// Package model defines the domain types used across the application.
package model

import "time"

// FlightStatus is the lifecycle state of a flight.
type FlightStatus string

// Flight states. Transitions go only new -> in_air -> landed.
const (
	FlightNew    FlightStatus = "new"
	FlightInAir  FlightStatus = "in_air"
	FlightLanded FlightStatus = "landed"
)

// Flight is the bookkeeping record of one origin processing run.
type Flight struct {
	UUID         string
	Airline      string
	Origin       string
	Status       FlightStatus
	StartedAt    *time.Time
	FinishedAt   *time.Time
	NumProcessed int64
}

// FilterKind defines the type of filter rule.
type FilterKind string

// Supported filter kinds.
const (
	FilterInclude   FilterKind = "include"
	FilterExclude   FilterKind = "exclude"
	FilterIncludeRe FilterKind = "include_re"
	FilterExcludeRe FilterKind = "exclude_re"
)

// FilterScope defines which payload text a filter matches against.
type FilterScope string

// Supported filter scopes.
const (
	ScopeTitle   FilterScope = "title"
	ScopeContent FilterScope = "content"
	ScopeAll     FilterScope = "all"
)

// Filter is a single include/exclude rule attached to an origin.
type Filter struct {
	Kind  FilterKind  `yaml:"kind"`
	Scope FilterScope `yaml:"scope"`
	Value string      `yaml:"value"`
}
