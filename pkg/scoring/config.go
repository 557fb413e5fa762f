package scoring

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ComponentConfig holds the tunable constants for one component.
type ComponentConfig struct {
	// Limit is the sensor threshold. Engine scores readings above it, the others below it.
	Limit float64 `yaml:"limit" json:"limit"`

	// Divisor scales the deviation from Limit into a probability term.
	Divisor float64 `yaml:"divisor" json:"divisor" validate:"gt=0"`

	// MileageCutoff is the distance after which MileageBonus applies. For the oil system
	// it is the distance allowed since the last oil change.
	MileageCutoff float64 `yaml:"mileage_cutoff" json:"mileage_cutoff" validate:"gte=0"`

	// MileageBonus is added once when the mileage cutoff is exceeded.
	MileageBonus float64 `yaml:"mileage_bonus" json:"mileage_bonus" validate:"gte=0,lte=1"`

	// Keyword matches maintenance issues that count as recurrences.
	Keyword string `yaml:"keyword" json:"keyword" validate:"required"`

	// RecurrenceIncrement is added per matching history record.
	RecurrenceIncrement float64 `yaml:"recurrence_increment" json:"recurrence_increment" validate:"gte=0,lte=1"`

	// WindowDays is the ceiling for estimated days to failure.
	WindowDays int `yaml:"window_days" json:"window_days" validate:"gt=0"`
}

// Config holds the scoring thresholds and per-component constants.
type Config struct {
	// IncludeThreshold is the probability a component must exceed to be reported.
	IncludeThreshold float64 `yaml:"include_threshold" json:"include_threshold" validate:"gte=0,lt=1"`

	// HighThreshold is the probability above which a component is high severity.
	HighThreshold float64 `yaml:"high_threshold" json:"high_threshold" validate:"gtfield=IncludeThreshold,lt=1"`

	// CriticalThreshold is the probability above which a component is critical.
	CriticalThreshold float64 `yaml:"critical_threshold" json:"critical_threshold" validate:"gtfield=HighThreshold,lt=1"`

	// HighConfidenceThreshold is the mean probability above which RUL confidence is high.
	HighConfidenceThreshold float64 `yaml:"high_confidence_threshold" json:"high_confidence_threshold" validate:"gte=0,lte=1"`

	// DailyUsage is the assumed distance driven per day.
	DailyUsage float64 `yaml:"daily_usage" json:"daily_usage" validate:"gt=0"`

	// DefaultDistance and DefaultDays form the RUL when no component is at risk.
	DefaultDistance float64 `yaml:"default_distance" json:"default_distance" validate:"gte=0"`
	DefaultDays     int     `yaml:"default_days" json:"default_days" validate:"gte=0"`

	// EngineDTCBonus is added when a current trouble code is in EngineDTCCodes.
	EngineDTCBonus float64  `yaml:"engine_dtc_bonus" json:"engine_dtc_bonus" validate:"gte=0,lte=1"`
	EngineDTCCodes []string `yaml:"engine_dtc_codes" json:"engine_dtc_codes"`

	Engine  ComponentConfig `yaml:"engine" json:"engine"`
	Brakes  ComponentConfig `yaml:"brakes" json:"brakes"`
	Battery ComponentConfig `yaml:"battery" json:"battery"`
	Oil     ComponentConfig `yaml:"oil" json:"oil"`
}

// DefaultConfig returns the standard scoring constants.
func DefaultConfig() Config {
	return Config{
		IncludeThreshold:        0.3,
		HighThreshold:           0.5,
		CriticalThreshold:       0.7,
		HighConfidenceThreshold: 0.6,
		DailyUsage:              15,
		DefaultDistance:         10000,
		DefaultDays:             120,
		EngineDTCBonus:          0.25,
		EngineDTCCodes:          []string{"P0300", "P0420", "P0171", "P0128", "P0217", "P0118"},
		Engine: ComponentConfig{
			Limit:               100,
			Divisor:             50,
			MileageCutoff:       80000,
			MileageBonus:        0.2,
			Keyword:             "engine",
			RecurrenceIncrement: 0.1,
			WindowDays:          60,
		},
		Brakes: ComponentConfig{
			Limit:               70,
			Divisor:             70,
			MileageCutoff:       50000,
			MileageBonus:        0.15,
			Keyword:             "brake",
			RecurrenceIncrement: 0.15,
			WindowDays:          45,
		},
		Battery: ComponentConfig{
			Limit:               12.0,
			Divisor:             2,
			MileageCutoff:       60000,
			MileageBonus:        0.3,
			Keyword:             "battery",
			RecurrenceIncrement: 0.2,
			WindowDays:          30,
		},
		Oil: ComponentConfig{
			Limit:               70,
			Divisor:             70,
			MileageCutoff:       5000,
			MileageBonus:        0.3,
			Keyword:             "oil",
			RecurrenceIncrement: 0.15,
			WindowDays:          40,
		},
	}
}

// Validate checks the configuration with struct tags.
func (c *Config) Validate() error {
	return validateConfig(validator.New(), c)
}

func validateConfig(v *validator.Validate, c *Config) error {
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid scoring config: %w", err)
	}
	return nil
}
