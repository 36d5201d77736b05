package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rustyeddy/breakout/journal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the decision journal",
	Long: `Query and display decision and fill records from the SQLite journal.

Subcommands:
  decision - Show one decision by ID
  today    - List decisions for bars of today
  day      - List decisions for bars of a specific day

Examples:
  trader journal decision 01HRB3...
  trader journal today
  trader journal day 2024-03-04 --tz Europe/Oslo`,
}

var journalDecisionCmd = &cobra.Command{
	Use:   "decision <id>",
	Short: "Show one decision",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDecision,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List today's decisions",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List the decisions of a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var (
	journalDBPath string
	journalTZ     string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalDecisionCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./breakout.db", "path to SQLite journal DB")
	journalCmd.PersistentFlags().StringVar(&journalTZ, "tz", "Local", "time zone of the calendar day")
}

func runJournalDecision(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	d, err := j.GetDecision(args[0])
	if err != nil {
		return fmt.Errorf("get decision: %w", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetTitle("DECISION " + d.ID)
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"Bar", d.BarTime.Format(time.RFC3339)},
		{"Decided", d.Time.Format(time.RFC3339)},
		{"Instrument", d.Instrument},
		{"Strategy", d.Strategy},
		{"Action", d.Action},
		{"Reason", d.Reason},
		{"Side", d.Side},
		{"Entry", fmt.Sprintf("%.5f", d.Entry)},
		{"Stop loss", fmt.Sprintf("%.5f", d.StopLoss)},
		{"Take profit", fmt.Sprintf("%.5f", d.TakeProfit)},
		{"Volume", fmt.Sprintf("%.2f", d.Volume)},
		{"Risk", fmt.Sprintf("%.2f%%", d.RiskPct)},
		{"Equity", fmt.Sprintf("%.2f", d.Equity)},
		{"Used risk", fmt.Sprintf("%.2f%%", d.UsedRiskPct)},
		{"Detail", d.Message},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 12, Align: text.AlignLeft},
		{Number: 2, WidthMin: 30, WidthMax: 60, Align: text.AlignLeft},
	})
	t.Render()
	return nil
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	loc, err := time.LoadLocation(journalTZ)
	if err != nil {
		return fmt.Errorf("time zone: %w", err)
	}
	start, end := journal.Day(time.Now(), loc)
	return showDay(cmd.OutOrStdout(), start, end)
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	loc, err := time.LoadLocation(journalTZ)
	if err != nil {
		return fmt.Errorf("time zone: %w", err)
	}
	day, err := time.ParseInLocation("2006-01-02", args[0], loc)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	start, end := journal.Day(day, loc)
	return showDay(cmd.OutOrStdout(), start, end)
}

func showDay(out io.Writer, start, end time.Time) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	decisions, err := j.ListDecisionsBetween(start, end)
	if err != nil {
		return fmt.Errorf("query decisions: %w", err)
	}
	counts, err := j.ReasonCounts(start, end)
	if err != nil {
		return fmt.Errorf("query reasons: %w", err)
	}
	fills, err := j.ListFillsBetween(start, end)
	if err != nil {
		return fmt.Errorf("query fills: %w", err)
	}

	renderDecisions(out, start, decisions)
	renderReasons(out, counts)
	renderFills(out, fills)
	return nil
}

func renderDecisions(out io.Writer, day time.Time, ds []journal.DecisionRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(fmt.Sprintf("DECISIONS %s", day.Format("2006-01-02")))
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Bar", "Instrument", "Action", "Reason", "Side", "Entry", "SL", "TP", "Volume", "Equity"})
	for _, d := range ds {
		row := table.Row{d.BarTime.In(day.Location()).Format("15:04"), d.Instrument, d.Action, d.Reason, d.Side}
		if d.Side != "" {
			row = append(row,
				fmt.Sprintf("%.5f", d.Entry),
				fmt.Sprintf("%.5f", d.StopLoss),
				fmt.Sprintf("%.5f", d.TakeProfit),
				fmt.Sprintf("%.2f", d.Volume))
		} else {
			row = append(row, "", "", "", "")
		}
		row = append(row, fmt.Sprintf("%.2f", d.Equity))
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "", "Total", len(ds)})
	t.Render()
}

func renderReasons(out io.Writer, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Reason", "Count"})
	for _, r := range sortedKeys(counts) {
		t.AppendRow(table.Row{r, counts[r]})
	}
	t.Render()
}

func renderFills(out io.Writer, fs []journal.FillRecord) {
	if len(fs) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("FILLS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Time", "Order", "Side", "Volume", "Requested", "Price", "SL", "TP", "Paper"})
	for _, f := range fs {
		t.AppendRow(table.Row{
			f.Time.Format(time.RFC3339),
			f.OrderID,
			f.Side,
			fmt.Sprintf("%.2f", f.Volume),
			fmt.Sprintf("%.5f", f.Requested),
			fmt.Sprintf("%.5f", f.Price),
			fmt.Sprintf("%.5f", f.StopLoss),
			fmt.Sprintf("%.5f", f.TakeProfit),
			f.Paper,
		})
	}
	t.Render()
}
