package indicator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AnyChart/AnyChart-sub039/internal/table"
)

// Indicator types accepted in Config.Type.
const (
	TypeSMA      = "SMA"
	TypeEMA      = "EMA"
	TypeWMA      = "WMA"
	TypeMMA      = "MMA"
	TypeRSI      = "RSI"
	TypeATR      = "ATR"
	TypeCCI      = "CCI"
	TypeROC      = "ROC"
	TypeMomentum = "MOM"
	TypeAroon    = "AROON"
	TypeBBands   = "BBANDS"
	TypeOBV      = "OBV"
	TypeVWAP     = "VWAP"
	TypeMACD     = "MACD"
)

var typeAliases = map[string]string{
	"SMMA":      TypeMMA,
	"MOMENTUM":  TypeMomentum,
	"BOLLINGER": TypeBBands,
}

// periodless types ignore Config.Period.
var periodless = map[string]bool{TypeOBV: true, TypeVWAP: true, TypeMACD: true}

// Config specifies a single indicator to compute.
type Config struct {
	Name      string  `yaml:"name" json:"name"`
	Type      string  `yaml:"type" json:"type"`
	Period    int     `yaml:"period,omitempty" json:"period,omitempty"`
	Source    string  `yaml:"source,omitempty" json:"source,omitempty"`
	Deviation float64 `yaml:"deviation,omitempty" json:"deviation,omitempty"`
	Fast      int     `yaml:"fast,omitempty" json:"fast,omitempty"`
	Slow      int     `yaml:"slow,omitempty" json:"slow,omitempty"`
	Signal    int     `yaml:"signal,omitempty" json:"signal,omitempty"`
}

// Normalized returns c with its type canonicalised and defaults filled in:
// source "close", name "<type>_<period>" in lower case, MACD 12/26/9 and a
// band deviation of 2.
func (c Config) Normalized() Config {
	c.Type = strings.ToUpper(strings.TrimSpace(c.Type))
	if t, ok := typeAliases[c.Type]; ok {
		c.Type = t
	}
	if c.Source == "" {
		c.Source = DefaultOHLCV.Close
	}
	switch c.Type {
	case TypeMACD:
		if c.Fast == 0 {
			c.Fast = DefaultMACDFast
		}
		if c.Slow == 0 {
			c.Slow = DefaultMACDSlow
		}
		if c.Signal == 0 {
			c.Signal = DefaultMACDSignal
		}
	case TypeBBands:
		if c.Deviation == 0 {
			c.Deviation = DefaultDeviation
		}
	}
	if c.Name == "" {
		c.Name = strings.ToLower(c.Type)
		if !periodless[c.Type] {
			c.Name += "_" + strconv.Itoa(c.Period)
		}
	}
	return c
}

// Outputs returns the mapping fields the indicator writes.
func (c Config) Outputs() []string {
	c = c.Normalized()
	switch c.Type {
	case TypeAroon:
		return AroonOutputs(c.Name)
	case TypeBBands:
		return BBandsOutputs(c.Name)
	case TypeMACD:
		return MACDOutputs(c.Name)
	}
	return []string{c.Name}
}

// ValidateConfigs checks a set of configs for errors. Names, including the
// derived output names, must be unique.
func ValidateConfigs(configs []Config) error {
	seen := make(map[string]bool)
	for _, raw := range configs {
		c := raw.Normalized()
		switch c.Type {
		case TypeSMA, TypeEMA, TypeWMA, TypeMMA, TypeRSI, TypeATR, TypeCCI,
			TypeROC, TypeMomentum, TypeAroon, TypeBBands:
			if c.Period <= 0 {
				return fmt.Errorf("invalid period=%d for %s", c.Period, c.Type)
			}
		case TypeOBV, TypeVWAP:
		case TypeMACD:
			if c.Fast <= 0 || c.Slow <= 0 || c.Signal <= 0 || c.Fast >= c.Slow {
				return fmt.Errorf("invalid MACD periods fast=%d slow=%d signal=%d", c.Fast, c.Slow, c.Signal)
			}
		default:
			return fmt.Errorf("unknown indicator type %q", raw.Type)
		}
		for _, out := range c.Outputs() {
			if seen[out] {
				return fmt.Errorf("duplicate indicator output %q", out)
			}
			seen[out] = true
		}
	}
	return nil
}

// Attach registers the computer described by c on t, reading from and
// writing into m.
func Attach(t *table.Table, m *table.Mapping, c Config) (*table.Computer, error) {
	c = c.Normalized()
	f := DefaultOHLCV
	switch c.Type {
	case TypeSMA:
		return SetupSMA(t, m, c.Source, c.Name, c.Period)
	case TypeEMA:
		return SetupEMA(t, m, c.Source, c.Name, c.Period)
	case TypeWMA:
		return SetupWMA(t, m, c.Source, c.Name, c.Period)
	case TypeMMA:
		return SetupMMA(t, m, c.Source, c.Name, c.Period)
	case TypeRSI:
		return SetupRSI(t, m, c.Source, c.Name, c.Period)
	case TypeROC:
		return SetupROC(t, m, c.Source, c.Name, c.Period)
	case TypeMomentum:
		return SetupMomentum(t, m, c.Source, c.Name, c.Period)
	case TypeATR:
		return SetupATR(t, m, f, c.Name, c.Period)
	case TypeCCI:
		return SetupCCI(t, m, f, c.Name, c.Period)
	case TypeAroon:
		return SetupAroon(t, m, f, c.Name, c.Period)
	case TypeBBands:
		return SetupBBands(t, m, c.Source, c.Name, c.Period, c.Deviation)
	case TypeOBV:
		return SetupOBV(t, m, f, c.Name)
	case TypeVWAP:
		return SetupVWAP(t, m, f, c.Name)
	case TypeMACD:
		return SetupMACD(t, m, c.Source, c.Name, c.Fast, c.Slow, c.Signal)
	}
	return nil, fmt.Errorf("unknown indicator type %q", c.Type)
}

// ParseConfigs parses the compact form "type:period[:source],..." used on
// the command line, e.g. "sma:20:close,rsi:14,obv".
func ParseConfigs(s string) ([]Config, error) {
	var out []Config
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		c := Config{Type: parts[0]}
		if len(parts) > 1 && parts[1] != "" {
			p, err := strconv.Atoi(parts[1])
			if err != nil {
				return nil, fmt.Errorf("indicator %q: invalid period: %w", item, err)
			}
			c.Period = p
		}
		if len(parts) > 2 {
			c.Source = parts[2]
		}
		if len(parts) > 3 {
			return nil, fmt.Errorf("indicator %q: too many parts", item)
		}
		out = append(out, c)
	}
	if err := ValidateConfigs(out); err != nil {
		return nil, err
	}
	return out, nil
}
