// Package journal keeps the audit trail of the engine: one record per
// processed bar, one per fill and periodic equity snapshots.
package journal

import (
	"time"
)

// DecisionRecord is the outcome of one bar. Every bar the engine
// processes produces exactly one, whether or not it traded.
type DecisionRecord struct {
	ID          string
	Time        time.Time // wall clock
	BarTime     time.Time
	Instrument  string
	Strategy    string
	Action      string
	Reason      string
	Side        string
	Entry       float64
	StopLoss    float64
	TakeProfit  float64
	Volume      float64
	RiskPct     float64 // effective risk per trade, percent
	Equity      float64
	UsedRiskPct float64
	Message     string
}

// FillRecord is an executed or paper order.
type FillRecord struct {
	OrderID    string
	PositionID string
	DecisionID string
	Time       time.Time
	Instrument string
	Side       string
	Volume     float64
	Requested  float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Paper      bool
}

type EquitySnapshot struct {
	Time        time.Time
	Balance     float64
	Equity      float64
	UsedRiskPct float64
}

type Journal interface {
	RecordDecision(DecisionRecord) error
	RecordFill(FillRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Discard is a Journal that drops every record.
var Discard Journal = discard{}

type discard struct{}

func (discard) RecordDecision(DecisionRecord) error { return nil }
func (discard) RecordFill(FillRecord) error         { return nil }
func (discard) RecordEquity(EquitySnapshot) error   { return nil }
func (discard) Close() error                        { return nil }

// timeLayout stores times as fixed-width UTC text so they sort and
// compare as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
