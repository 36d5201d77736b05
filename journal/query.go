package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("record not found")

const decisionColumns = `id, time, bar_time, instrument, strategy, action, reason, side, entry,
	stop_loss, take_profit, volume, risk_pct, equity, used_risk_pct, message`

type scanner interface {
	Scan(dest ...any) error
}

func scanDecision(s scanner) (DecisionRecord, error) {
	var (
		d           DecisionRecord
		wall, barTs string
	)
	err := s.Scan(
		&d.ID, &wall, &barTs, &d.Instrument, &d.Strategy, &d.Action, &d.Reason, &d.Side,
		&d.Entry, &d.StopLoss, &d.TakeProfit, &d.Volume, &d.RiskPct, &d.Equity,
		&d.UsedRiskPct, &d.Message,
	)
	if err != nil {
		return DecisionRecord{}, err
	}
	if d.Time, err = parseTime(wall); err != nil {
		return DecisionRecord{}, fmt.Errorf("decision %s: %w", d.ID, err)
	}
	if d.BarTime, err = parseTime(barTs); err != nil {
		return DecisionRecord{}, fmt.Errorf("decision %s: %w", d.ID, err)
	}
	return d, nil
}

// GetDecision returns a single decision by ID.
func (j *SQLite) GetDecision(id string) (DecisionRecord, error) {
	row := j.db.QueryRow(`SELECT `+decisionColumns+` FROM decisions WHERE id = ?`, id)
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DecisionRecord{}, fmt.Errorf("decision %q: %w", id, ErrNotFound)
	}
	return d, err
}

// ListDecisionsBetween returns decisions whose bar time is within
// [start, end), oldest first.
func (j *SQLite) ListDecisionsBetween(start, end time.Time) ([]DecisionRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+decisionColumns+`
		FROM decisions
		WHERE bar_time >= ? AND bar_time < ?
		ORDER BY bar_time ASC, id ASC`, formatTime(start), formatTime(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListFillsBetween returns fills within [start, end), oldest first.
func (j *SQLite) ListFillsBetween(start, end time.Time) ([]FillRecord, error) {
	rows, err := j.db.Query(`
		SELECT order_id, position_id, decision_id, time, instrument, side, volume, requested,
			price, stop_loss, take_profit, paper
		FROM fills
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, formatTime(start), formatTime(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FillRecord
	for rows.Next() {
		var (
			f  FillRecord
			ts string
		)
		if err := rows.Scan(
			&f.OrderID, &f.PositionID, &f.DecisionID, &ts, &f.Instrument, &f.Side, &f.Volume,
			&f.Requested, &f.Price, &f.StopLoss, &f.TakeProfit, &f.Paper,
		); err != nil {
			return nil, err
		}
		if f.Time, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListEquityBetween returns equity snapshots within [start, end).
func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT time, balance, equity, used_risk_pct
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, formatTime(start), formatTime(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var (
			e  EquitySnapshot
			ts string
		)
		if err := rows.Scan(&ts, &e.Balance, &e.Equity, &e.UsedRiskPct); err != nil {
			return nil, err
		}
		if e.Time, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ReasonCounts counts decisions per reason code within [start, end).
func (j *SQLite) ReasonCounts(start, end time.Time) (map[string]int, error) {
	rows, err := j.db.Query(`
		SELECT reason, COUNT(*)
		FROM decisions
		WHERE bar_time >= ? AND bar_time < ?
		GROUP BY reason`, formatTime(start), formatTime(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[reason] = n
	}
	return out, rows.Err()
}

// Day returns [midnight, next midnight) of t's calendar day in loc.
func Day(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
