// market/instruments.go
package market

import (
	"fmt"
	"math"
)

// InstrumentRules are the broker's trading rules for one instrument.
// Volumes are in lots; TickValue is the account-currency P/L of one tick
// for one lot. MinStopDistance is in price units, 0 means no minimum.
type InstrumentRules struct {
	Instrument      string
	VolumeMin       float64
	VolumeMax       float64
	VolumeStep      float64
	TickSize        float64
	TickValue       float64
	MinStopDistance float64
}

func (r InstrumentRules) Validate() error {
	if r.TickSize <= 0 || r.TickValue <= 0 {
		return fmt.Errorf("%s: invalid tick economics (tick_size=%v, tick_value=%v)",
			r.Instrument, r.TickSize, r.TickValue)
	}
	if r.VolumeStep < 0 || r.VolumeMin < 0 || (r.VolumeMax > 0 && r.VolumeMax < r.VolumeMin) {
		return fmt.Errorf("%s: invalid volume rules (min=%v, max=%v, step=%v)",
			r.Instrument, r.VolumeMin, r.VolumeMax, r.VolumeStep)
	}
	return nil
}

type InstrumentMeta struct {
	Name                string
	BaseCurrency        string
	QuoteCurrency       string
	PipLocation         int
	TradeUnitsPrecision int
	MinimumTradeSize    float64
	MarginRate          float64

	// Lot economics for brokers that trade in lots.
	ContractSize float64
	StopsLevel   int // minimum stop distance in pipettes
}

var Instruments = map[string]InstrumentMeta{
	"EUR_USD": {
		Name:                "EUR_USD",
		BaseCurrency:        "EUR",
		QuoteCurrency:       "USD",
		PipLocation:         -4,
		TradeUnitsPrecision: 0,
		MinimumTradeSize:    1,
		MarginRate:          0.02,
		ContractSize:        100_000,
	},
	"GBP_USD": {
		Name:                "GBP_USD",
		BaseCurrency:        "GBP",
		QuoteCurrency:       "USD",
		PipLocation:         -4,
		TradeUnitsPrecision: 0,
		MinimumTradeSize:    1,
		MarginRate:          0.0333,
		ContractSize:        100_000,
	},
	"USD_JPY": {
		Name:                "USD_JPY",
		BaseCurrency:        "USD",
		QuoteCurrency:       "JPY",
		PipLocation:         -2,
		TradeUnitsPrecision: 0,
		MinimumTradeSize:    1,
		MarginRate:          0.02,
		ContractSize:        100_000,
	},
	"DE30_EUR": {
		Name:                "DE30_EUR",
		BaseCurrency:        "DE30",
		QuoteCurrency:       "EUR",
		PipLocation:         0,
		TradeUnitsPrecision: 1,
		MinimumTradeSize:    0.1,
		MarginRate:          0.05,
		ContractSize:        1,
		StopsLevel:          10,
	},
}

// PipSize returns the price size of one pip for a pip location.
func PipSize(loc int) float64 {
	return math.Pow(10, float64(loc))
}

// QuoteToAccountRate converts one unit of the instrument's quote currency
// into the account currency. mid is the instrument's current mid price and
// is only needed when the account currency is the base currency.
func QuoteToAccountRate(meta InstrumentMeta, accountCurrency string, mid float64) (float64, error) {
	// EUR_USD in a USD account
	if meta.QuoteCurrency == accountCurrency {
		return 1.0, nil
	}

	// USD_JPY in a USD account: mid is JPY per USD, we want USD per JPY
	if meta.BaseCurrency == accountCurrency {
		if mid <= 0 {
			return 0, fmt.Errorf("no price to convert %s into %s", meta.QuoteCurrency, accountCurrency)
		}
		return 1.0 / mid, nil
	}

	return 0, fmt.Errorf(
		"cross conversion not implemented for %s → %s",
		meta.QuoteCurrency,
		accountCurrency,
	)
}

// LotRules derives lot-based InstrumentRules from the static metadata.
// A tick is one pip; tick value is the P/L of one pip on one lot.
func LotRules(meta InstrumentMeta, accountCurrency string, mid float64) (InstrumentRules, error) {
	rate, err := QuoteToAccountRate(meta, accountCurrency, mid)
	if err != nil {
		return InstrumentRules{}, err
	}
	contract := meta.ContractSize
	if contract <= 0 {
		contract = 100_000
	}
	pip := PipSize(meta.PipLocation)
	return InstrumentRules{
		Instrument:      meta.Name,
		VolumeMin:       0.01,
		VolumeMax:       100,
		VolumeStep:      0.01,
		TickSize:        pip,
		TickValue:       pip * contract * rate,
		MinStopDistance: float64(meta.StopsLevel) * pip / 10,
	}, nil
}
