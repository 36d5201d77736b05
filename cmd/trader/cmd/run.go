package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/broker/oanda"
	"github.com/rustyeddy/breakout/broker/sim"
	"github.com/rustyeddy/breakout/config"
	"github.com/rustyeddy/breakout/engine"
	"github.com/rustyeddy/breakout/internal/logger"
	"github.com/rustyeddy/breakout/journal"
	"github.com/rustyeddy/breakout/metrics"
	"github.com/rustyeddy/breakout/strategies"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading loop",
	Long: `Run the bar-driven control loop for one instrument.

With --broker oanda the loop polls the OANDA v20 API every polling
interval until interrupted. With --broker sim the bars of --bars-csv are
replayed one at a time through the same pipeline.

Examples:
  trader run -c breakout.yaml --mode paper
  trader run --broker sim --bars-csv eurusd_m15.csv --symbol EUR_USD`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runSymbol    string
	runBroker    string
	runBarsCSV   string
	runMode      string
	runTimeframe string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runSymbol, "symbol", "s", "", "instrument, e.g. EUR_USD (overrides config)")
	runCmd.Flags().StringVar(&runBroker, "broker", "", "broker: sim or oanda (overrides config)")
	runCmd.Flags().StringVar(&runBarsCSV, "bars-csv", "", "bar file replayed by the sim broker")
	runCmd.Flags().StringVar(&runMode, "mode", "", "paper or live (overrides config)")
	runCmd.Flags().StringVar(&runTimeframe, "timeframe", "", "bar timeframe M1..D1 (overrides config)")
}

// applyRunFlags layers the command line over the loaded config.
func applyRunFlags(cfg *config.Config) error {
	if runBroker != "" {
		cfg.Broker.Type = strings.ToLower(runBroker)
	}
	if runBarsCSV != "" {
		cfg.Broker.BarsCSV = runBarsCSV
	}
	if runMode != "" {
		cfg.Trading.Mode = strings.ToLower(runMode)
	}
	if runTimeframe != "" {
		cfg.Trading.Timeframe = strings.ToUpper(runTimeframe)
	}
	cfg.Trading.Instrument = cfg.ResolveInstrument(runSymbol)
	return cfg.Validate()
}

func openJournal(cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case "csv":
		return journal.NewCSV(cfg.DecisionsFile, cfg.FillsFile)
	case "none":
		return journal.Discard, nil
	default:
		return journal.NewSQLite(cfg.DBPath)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyRunFlags(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}

	strat, err := strategies.ByName(cfg.Strategy)
	if err != nil {
		return err
	}

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := metrics.New()
	if cfg.Metrics.Enabled {
		go func() {
			if err := rec.Serve(ctx, cfg.Metrics.Addr, cfg.Metrics.Path, log); err != nil {
				log.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	var (
		b      broker.Broker
		replay *sim.Engine
	)
	switch cfg.Broker.Type {
	case "oanda":
		ob, err := oanda.Connect(ctx, oanda.Config{
			Env:       cfg.Broker.Env,
			BaseURL:   cfg.Broker.BaseURL,
			Token:     cfg.Broker.Token,
			AccountID: cfg.Broker.AccountID,
			Timeout:   cfg.Broker.Timeout,
			RateLimit: cfg.Broker.RateLimit,
			RateBurst: cfg.Broker.RateBurst,
		}, log)
		if err != nil {
			log.Error().Err(err).Msg("broker connection failed")
			return err
		}
		b = ob
	default:
		replay, err = newSimBroker(cfg)
		if err != nil {
			return err
		}
		b = replay
	}

	eng, err := engine.New(engine.Options{
		Broker:     b,
		Strategy:   strat,
		Journal:    j,
		Metrics:    rec,
		Logger:     log,
		Instrument: cfg.Trading.Instrument,
		Timeframe:  cfg.Timeframe(),
		Bars:       cfg.Trading.Bars,
		Polling:    cfg.Trading.Polling,
		Mode:       engine.Mode(cfg.Trading.Mode),
		Location:   cfg.Location(),
	})
	if err != nil {
		_ = b.Close()
		return err
	}
	if err := eng.Configure(cfg.RiskSettings()); err != nil {
		_ = b.Close()
		return err
	}

	if replay != nil {
		return runReplay(ctx, cmd, eng, replay, cfg, log)
	}
	return eng.Run(ctx)
}

func newSimBroker(cfg *config.Config) (*sim.Engine, error) {
	if cfg.Broker.BarsCSV == "" {
		return nil, errors.New("sim broker needs --bars-csv (or broker.bars_csv)")
	}
	bars, err := sim.LoadBarsCSV(cfg.Broker.BarsCSV)
	if err != nil {
		return nil, err
	}
	s := sim.NewEngine(sim.Config{
		AccountID: cfg.Account.ID,
		Currency:  cfg.Account.Currency,
		Balance:   cfg.Account.Balance,
		Slippage:  cfg.Broker.Slippage,
	})
	s.Load(cfg.Trading.Instrument, bars, 1)
	return s, nil
}

// runReplay steps the engine through every bar of the sim series, one
// decision per bar, then prints the account summary.
func runReplay(ctx context.Context, cmd *cobra.Command, eng *engine.Engine, s *sim.Engine, cfg *config.Config, log zerolog.Logger) error {
	defer s.Close()

	decisions := map[string]int{}
	for {
		if ctx.Err() != nil {
			log.Info().Msg("replay interrupted")
			break
		}
		act, err := eng.Step(ctx)
		if err != nil {
			return err
		}
		if act.DecisionID != "" {
			decisions[string(act.Reason)]++
		}
		if !s.Advance() {
			break
		}
	}

	acct, err := s.GetAccount(ctx)
	if err != nil {
		return err
	}
	trades := s.Trades()
	wins, losses := 0, 0
	for _, tr := range trades {
		switch {
		case tr.RealizedPL > 0:
			wins++
		case tr.RealizedPL < 0:
			losses++
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetTitle("REPLAY " + cfg.Trading.Instrument)
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"Mode", cfg.Trading.Mode},
		{"Strategy", cfg.Strategy.Name},
		{"Start balance", fmt.Sprintf("%.2f", cfg.Account.Balance)},
		{"Balance", fmt.Sprintf("%.2f", acct.Balance)},
		{"Equity", fmt.Sprintf("%.2f", acct.Equity)},
		{"Closed trades", len(trades)},
		{"Wins / losses", fmt.Sprintf("%d / %d", wins, losses)},
	})
	t.AppendSeparator()
	for _, r := range sortedKeys(decisions) {
		t.AppendRow(table.Row{r, decisions[r]})
	}
	t.Render()
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
