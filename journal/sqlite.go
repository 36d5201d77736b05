package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

var _ Journal = (*SQLite)(nil)

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer; the engine is single threaded anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordDecision(d DecisionRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO decisions
		(id, time, bar_time, instrument, strategy, action, reason, side, entry, stop_loss,
		 take_profit, volume, risk_pct, equity, used_risk_pct, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, formatTime(d.Time), formatTime(d.BarTime), d.Instrument, d.Strategy, d.Action,
		d.Reason, d.Side, d.Entry, d.StopLoss, d.TakeProfit, d.Volume, d.RiskPct, d.Equity,
		d.UsedRiskPct, d.Message,
	)
	return err
}

func (j *SQLite) RecordFill(f FillRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO fills
		(order_id, position_id, decision_id, time, instrument, side, volume, requested,
		 price, stop_loss, take_profit, paper)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID, f.PositionID, f.DecisionID, formatTime(f.Time), f.Instrument, f.Side,
		f.Volume, f.Requested, f.Price, f.StopLoss, f.TakeProfit, f.Paper,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity (time, balance, equity, used_risk_pct)
		VALUES (?, ?, ?, ?)`,
		formatTime(e.Time), e.Balance, e.Equity, e.UsedRiskPct,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
