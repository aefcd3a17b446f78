package stackmon

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"cellstack-go/drivers/ltc681x"
)

// Config describes one monitored stack. Loaded from YAML; zero fields
// take defaults in normalize.
type Config struct {
	// ChainLength is the number of daisy-chained monitor devices.
	ChainLength int `yaml:"chain_length"`
	// CellsPerDevice is how many cell inputs are wired per device (1-6).
	CellsPerDevice int `yaml:"cells_per_device"`

	// ADCMode: "fast", "normal", "filtered" or "other".
	ADCMode string `yaml:"adc_mode"`
	// DischargePermitted allows discharge switches to stay closed
	// during conversions.
	DischargePermitted bool `yaml:"discharge_permitted"`
	// SDOPolling selects line-hold completion polling instead of a
	// fixed settle wait.
	SDOPolling bool `yaml:"sdo_polling"`

	IntervalMs    int `yaml:"interval_ms"`
	PollTimeoutMs int `yaml:"poll_timeout_ms"`

	// Comparison thresholds in microvolts; 0 leaves the comparison
	// disabled.
	UnderVoltageUV uint32 `yaml:"under_voltage_uv"`
	OverVoltageUV  uint32 `yaml:"over_voltage_uv"`

	// ReferencePowered keeps the measurement references up between
	// conversions (faster sampling, more idle current).
	ReferencePowered bool `yaml:"reference_powered"`
	// GPIOPullDowns lists GPIO numbers whose pull-downs are enabled.
	GPIOPullDowns []int `yaml:"gpio_pull_downs"`
}

// Load reads and normalizes a YAML config file.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes, normalizes and validates raw YAML.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	if c.CellsPerDevice == 0 {
		c.CellsPerDevice = 6
	}
	if c.ADCMode == "" {
		c.ADCMode = "normal"
	}
	if c.IntervalMs == 0 {
		c.IntervalMs = 1000
	}
	if c.PollTimeoutMs == 0 {
		c.PollTimeoutMs = 500
	}
}

// Validate checks field ranges after normalization.
func (c Config) Validate() error {
	if c.ChainLength < 1 {
		return errors.New("chain_length must be at least 1")
	}
	if c.CellsPerDevice < 1 || c.CellsPerDevice > 6 {
		return errors.New("cells_per_device must be 1-6")
	}
	if _, err := c.adcMode(); err != nil {
		return err
	}
	for _, pin := range c.GPIOPullDowns {
		if pin < 1 || pin > 9 {
			return fmt.Errorf("gpio_pull_downs: pin %d out of range", pin)
		}
	}
	return nil
}

func (c Config) adcMode() (ltc681x.ADCMode, error) {
	switch c.ADCMode {
	case "fast":
		return ltc681x.ADCModeFast, nil
	case "normal":
		return ltc681x.ADCModeNormal, nil
	case "filtered":
		return ltc681x.ADCModeFiltered, nil
	case "other":
		return ltc681x.ADCModeOther, nil
	default:
		return 0, fmt.Errorf("adc_mode: unknown mode %q", c.ADCMode)
	}
}
