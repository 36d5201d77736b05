package risk

import "fmt"

// Settings are the risk limits of one engine. They are loaded once at
// startup and never change afterwards. Zero disables the optional caps.
type Settings struct {
	RiskFraction          float64 // 0.01 = 1% of equity per trade
	UseRiskSizing         bool
	FixedVolume           float64 // lots when UseRiskSizing is off
	MaxVolume             float64
	MaxRiskMoney          float64
	MaxTotalRiskPercent   float64 // percent, 3 = 3%
	MaxPositionsPerSymbol int
	MaxDailyLossPercent   float64 // percent
	MaxDailyLossMoney     float64
}

func (s Settings) Validate() error {
	if s.UseRiskSizing && s.RiskFraction <= 0 {
		return fmt.Errorf("risk fraction must be positive, got %v", s.RiskFraction)
	}
	if !s.UseRiskSizing && s.FixedVolume <= 0 {
		return fmt.Errorf("fixed volume must be positive when risk sizing is off, got %v", s.FixedVolume)
	}
	if s.MaxVolume < 0 || s.MaxRiskMoney < 0 || s.MaxTotalRiskPercent < 0 {
		return fmt.Errorf("caps must not be negative")
	}
	if s.MaxPositionsPerSymbol <= 0 {
		return fmt.Errorf("max positions per symbol must be positive, got %d", s.MaxPositionsPerSymbol)
	}
	if s.MaxDailyLossPercent < 0 || s.MaxDailyLossMoney < 0 {
		return fmt.Errorf("daily loss limits must not be negative")
	}
	return nil
}
