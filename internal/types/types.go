// Package types provides common type definitions for the portfolio evaluator.
package types

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used for post, purchase and price dates
const DateLayout = "2006-01-02"

// Source identifies the platform a post was collected from
type Source string

const (
	// SourceReddit represents posts collected from reddit
	SourceReddit Source = "reddit"
)

// Provider identifies an external price provider
type Provider string

const (
	// ProviderCoinGecko is the primary spot and historical price provider
	ProviderCoinGecko Provider = "coin_gecko"
	// ProviderCoinMarketCap is the fallback spot price provider
	ProviderCoinMarketCap Provider = "coin_market_cap"
)

// ProviderIDs maps a provider to the coin identifier it uses for an asset.
// A missing entry means the provider does not know the asset.
type ProviderIDs map[Provider]string

// Get returns the identifier for a provider and whether it is set
func (p ProviderIDs) Get(provider Provider) (string, bool) {
	id, ok := p[provider]
	return id, ok && id != ""
}

// PipelineState represents the processing state of a source post
type PipelineState string

const (
	// StateUnseen represents a post that has not been stored yet
	StateUnseen PipelineState = "unseen"
	// StateFetched represents a stored post that has not been interpreted
	StateFetched PipelineState = "fetched"
	// StateInterpreted represents a post whose images were interpreted
	StateInterpreted PipelineState = "interpreted"
	// StatePurchasesRecorded represents a portfolio post whose purchases are stored
	StatePurchasesRecorded PipelineState = "purchases_recorded"
	// StateEvaluated represents a portfolio that was evaluated at least once
	StateEvaluated PipelineState = "evaluated"
)

// Outcome describes how a single-post pipeline run ended
type Outcome string

const (
	// OutcomeEvaluated means the post is a portfolio and evaluation succeeded
	OutcomeEvaluated Outcome = "evaluated"
	// OutcomeNotPortfolio means the post was interpreted and is not a portfolio
	OutcomeNotPortfolio Outcome = "not_portfolio"
	// OutcomeUndetermined means interpretation failed and portfolio-ness is unknown
	OutcomeUndetermined Outcome = "undetermined"
	// OutcomeEvaluationIncomplete means the post is a portfolio but evaluation aborted
	OutcomeEvaluationIncomplete Outcome = "evaluation_incomplete"
	// OutcomeInterpreted means the run stopped after interpretation (debug mode)
	OutcomeInterpreted Outcome = "interpreted"
)

// ISOWeek is an ISO-8601 (year, week) bucket
type ISOWeek struct {
	Year int `json:"year"`
	Week int `json:"week"`
}

// ISOWeekOf returns the ISO week bucket containing t
func ISOWeekOf(t time.Time) ISOWeek {
	year, week := t.ISOWeek()
	return ISOWeek{Year: year, Week: week}
}

// Monday returns the Monday (UTC midnight) that starts the ISO week
func (w ISOWeek) Monday() time.Time {
	// January 4th is always in ISO week 1
	jan4 := time.Date(w.Year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	week1Monday := jan4.AddDate(0, 0, -offset)
	return week1Monday.AddDate(0, 0, (w.Week-1)*7)
}

// Previous returns the ISO week n weeks before w
func (w ISOWeek) Previous(n int) ISOWeek {
	return ISOWeekOf(w.Monday().AddDate(0, 0, -7*n))
}

// Valid reports whether the week number exists in the ISO year
func (w ISOWeek) Valid() bool {
	if w.Week < 1 || w.Week > 53 {
		return false
	}
	return ISOWeekOf(w.Monday()) == w
}

func (w ISOWeek) String() string {
	return fmt.Sprintf("%d-W%02d", w.Year, w.Week)
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
