package journal

import (
	"encoding/csv"
	"os"
	"strconv"
)

// CSV appends decisions and fills to two CSV files. Equity snapshots are
// not kept.
type CSV struct {
	decisions *csv.Writer
	fills     *csv.Writer
	df, ff    *os.File
}

var _ Journal = (*CSV)(nil)

var (
	decisionHeader = []string{"id", "time", "bar_time", "instrument", "strategy", "action", "reason", "side",
		"entry", "stop_loss", "take_profit", "volume", "risk_pct", "equity", "used_risk_pct", "message"}
	fillHeader = []string{"order_id", "position_id", "decision_id", "time", "instrument", "side", "volume",
		"requested", "price", "stop_loss", "take_profit", "paper"}
)

// NewCSV opens (appending) the two files and writes the headers of any
// file that is new.
func NewCSV(decisionsPath, fillsPath string) (*CSV, error) {
	df, dw, err := openCSV(decisionsPath, decisionHeader)
	if err != nil {
		return nil, err
	}
	ff, fw, err := openCSV(fillsPath, fillHeader)
	if err != nil {
		_ = df.Close()
		return nil, err
	}
	return &CSV{decisions: dw, fills: fw, df: df, ff: ff}, nil
}

func openCSV(path string, header []string) (*os.File, *csv.Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	w := csv.NewWriter(f)
	if st.Size() == 0 {
		if err := write(w, header); err != nil {
			_ = f.Close()
			return nil, nil, err
		}
	}
	return f, w, nil
}

func write(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSV) RecordDecision(d DecisionRecord) error {
	return write(j.decisions, []string{
		d.ID,
		formatTime(d.Time),
		formatTime(d.BarTime),
		d.Instrument,
		d.Strategy,
		d.Action,
		d.Reason,
		d.Side,
		f(d.Entry),
		f(d.StopLoss),
		f(d.TakeProfit),
		f(d.Volume),
		f(d.RiskPct),
		f(d.Equity),
		f(d.UsedRiskPct),
		d.Message,
	})
}

func (j *CSV) RecordFill(r FillRecord) error {
	return write(j.fills, []string{
		r.OrderID,
		r.PositionID,
		r.DecisionID,
		formatTime(r.Time),
		r.Instrument,
		r.Side,
		f(r.Volume),
		f(r.Requested),
		f(r.Price),
		f(r.StopLoss),
		f(r.TakeProfit),
		strconv.FormatBool(r.Paper),
	})
}

func (j *CSV) RecordEquity(EquitySnapshot) error { return nil }

func (j *CSV) Close() error {
	j.decisions.Flush()
	if err := j.decisions.Error(); err != nil {
		return err
	}
	j.fills.Flush()
	if err := j.fills.Error(); err != nil {
		return err
	}
	if err := j.df.Close(); err != nil {
		return err
	}
	return j.ff.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
