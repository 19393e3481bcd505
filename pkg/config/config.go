package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ADC drivers.
const (
	ADCDriverSerial  = "serial"
	ADCDriverMCP3008 = "mcp3008"
)

// Current sensor kinds.
const (
	CurrentKindCT         = "ct"
	CurrentKindTransducer = "transducer"
)

// Config represents the application configuration.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	ADC      ADCConfig     `yaml:"adc"`
	Voltage  VoltageConfig `yaml:"voltage"`
	Current  CurrentConfig `yaml:"current"`
	Power    PowerConfig   `yaml:"power"`
	Output   OutputConfig  `yaml:"output"`
	Display  DisplayConfig `yaml:"display"`
	Mock     MockConfig    `yaml:"mock"`
}

// ADCConfig selects and configures the converter.
type ADCConfig struct {
	Driver   string        `yaml:"driver"` // serial or mcp3008
	Port     string        `yaml:"port"`
	BaudRate int           `yaml:"baud_rate"`
	Bits     int           `yaml:"bits"`    // Converter resolution (10 for MCP3008)
	Timeout  time.Duration `yaml:"timeout"` // Per-read timeout on the serial port

	SPIPort      string `yaml:"spi_port"`      // Empty selects the first SPI port
	SPIFrequency int64  `yaml:"spi_frequency"` // Hz
}

// DisplayConfig contains the live plot settings.
type DisplayConfig struct {
	History int `yaml:"history"` // Records kept on the trend plot
}

// WaveformConfig describes the high-rate voltage window fed to the power calculator.
type WaveformConfig struct {
	Samples  int           `yaml:"samples"`
	Interval time.Duration `yaml:"interval"`
	Scale    float64       `yaml:"scale"` // Extra gain on top of the mains calibration
}

// VoltageConfig contains the mains voltage sensor configuration.
type VoltageConfig struct {
	Channel           int            `yaml:"channel"`
	VRef              float64        `yaml:"vref"`
	Samples           int            `yaml:"samples"`
	Interval          time.Duration  `yaml:"interval"`
	Calibration       float64        `yaml:"calibration"`        // Static hardware constant
	ExpectedMainsRMS  float64        `yaml:"expected_mains_rms"` // Reference for the startup calibration
	MinCalibrationRMS float64        `yaml:"min_calibration_rms"`
	Waveform          WaveformConfig `yaml:"waveform"`
}

// CurrentConfig contains the current sensor configuration.
type CurrentConfig struct {
	Kind               string        `yaml:"kind"` // "ct" or "transducer"
	Channel            int           `yaml:"channel"`
	VRef               float64       `yaml:"vref"`
	Samples            int           `yaml:"samples"`
	Interval           time.Duration `yaml:"interval"`
	MaxRatedCurrent    float64       `yaml:"max_rated_current"`  // A at rated output
	MaxSensorVoltage   float64       `yaml:"max_sensor_voltage"` // V at rated current
	VoltageCalibration float64       `yaml:"voltage_calibration"`
	CurrentCalibration float64       `yaml:"current_calibration"`
	TransducerFactor   float64       `yaml:"transducer_factor"` // A per volt, transducer kind only
}

// PowerConfig contains power computation and loop parameters.
type PowerConfig struct {
	Period     time.Duration `yaml:"period"`
	NoiseFloor float64       `yaml:"noise_floor"` // Currents below this are treated as zero
}

// OutputConfig contains CSV output parameters.
type OutputConfig struct {
	Path         string `yaml:"path"` // Empty or "-" writes to stdout
	FlushEachRow bool   `yaml:"flush_each_row"`
}

// MockConfig contains synthetic signal parameters.
type MockConfig struct {
	Frequency        float64 `yaml:"frequency"`         // Mains frequency (Hz)
	VoltageAmplitude float64 `yaml:"voltage_amplitude"` // Normalized amplitude
	VoltageOffset    float64 `yaml:"voltage_offset"`
	CurrentAmplitude float64 `yaml:"current_amplitude"`
	CurrentOffset    float64 `yaml:"current_offset"`
	PhaseShift       float64 `yaml:"phase_shift"` // Current lag in radians
	NoiseLevel       float64 `yaml:"noise_level"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		ADC: ADCConfig{
			Driver:       ADCDriverSerial,
			Port:         "/dev/ttyACM0",
			BaudRate:     115200,
			Bits:         10,
			Timeout:      100 * time.Millisecond,
			SPIFrequency: 1_000_000,
		},
		Display: DisplayConfig{
			History: 300,
		},
		Voltage: VoltageConfig{
			Channel:          1,
			VRef:             3.3,
			Samples:          100,
			Interval:         time.Millisecond,
			Calibration:      1.99,
			ExpectedMainsRMS: 120,
			Waveform: WaveformConfig{
				Samples:  1000,
				Interval: 10 * time.Microsecond, // 100 kHz
				Scale:    1,
			},
		},
		Current: CurrentConfig{
			Kind:               CurrentKindCT,
			Channel:            0,
			VRef:               3.3,
			Samples:            1000,
			Interval:           time.Millisecond,
			MaxRatedCurrent:    30,
			MaxSensorVoltage:   0.333,
			VoltageCalibration: 24.5,
			CurrentCalibration: 1.85,
			TransducerFactor:   10,
		},
		Power: PowerConfig{
			Period:     time.Second,
			NoiseFloor: 0.4,
		},
		Output: OutputConfig{
			Path:         "-",
			FlushEachRow: true,
		},
		Mock: MockConfig{
			Frequency:        60,
			VoltageAmplitude: 0.4,
			VoltageOffset:    0.5,
			CurrentAmplitude: 0.05,
			CurrentOffset:    0.5,
			PhaseShift:       0.3,
			NoiseLevel:       0.002,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate reports every field that cannot produce a working meter.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.ADC.Driver {
	case ADCDriverSerial:
		check(c.ADC.Bits > 0 && c.ADC.Bits <= 24, "adc.bits must be in [1, 24], got %d", c.ADC.Bits)
	case ADCDriverMCP3008:
		check(c.ADC.SPIFrequency > 0, "adc.spi_frequency must be positive, got %d", c.ADC.SPIFrequency)
		check(c.Voltage.Channel < 8, "voltage.channel must be below 8 on mcp3008, got %d", c.Voltage.Channel)
		check(c.Current.Channel < 8, "current.channel must be below 8 on mcp3008, got %d", c.Current.Channel)
	default:
		errs = append(errs, fmt.Errorf("adc.driver must be %q or %q, got %q", ADCDriverSerial, ADCDriverMCP3008, c.ADC.Driver))
	}

	check(c.Voltage.Channel >= 0, "voltage.channel must be non-negative, got %d", c.Voltage.Channel)
	check(c.Voltage.VRef > 0, "voltage.vref must be positive, got %g", c.Voltage.VRef)
	check(c.Voltage.Samples > 0, "voltage.samples must be positive, got %d", c.Voltage.Samples)
	check(c.Voltage.Interval >= 0, "voltage.interval must not be negative, got %s", c.Voltage.Interval)
	check(c.Voltage.Calibration > 0, "voltage.calibration must be positive, got %g", c.Voltage.Calibration)
	check(c.Voltage.ExpectedMainsRMS > 0, "voltage.expected_mains_rms must be positive, got %g", c.Voltage.ExpectedMainsRMS)
	check(c.Voltage.MinCalibrationRMS >= 0, "voltage.min_calibration_rms must not be negative, got %g", c.Voltage.MinCalibrationRMS)
	check(c.Voltage.Waveform.Samples > 0, "voltage.waveform.samples must be positive, got %d", c.Voltage.Waveform.Samples)
	check(c.Voltage.Waveform.Interval >= 0, "voltage.waveform.interval must not be negative, got %s", c.Voltage.Waveform.Interval)
	check(c.Voltage.Waveform.Scale > 0, "voltage.waveform.scale must be positive, got %g", c.Voltage.Waveform.Scale)

	switch c.Current.Kind {
	case CurrentKindCT:
		check(c.Current.Samples > 0, "current.samples must be positive, got %d", c.Current.Samples)
		check(c.Current.Interval >= 0, "current.interval must not be negative, got %s", c.Current.Interval)
		check(c.Current.MaxRatedCurrent > 0, "current.max_rated_current must be positive, got %g", c.Current.MaxRatedCurrent)
		check(c.Current.MaxSensorVoltage > 0, "current.max_sensor_voltage must be positive, got %g", c.Current.MaxSensorVoltage)
	case CurrentKindTransducer:
		check(c.Current.TransducerFactor > 0, "current.transducer_factor must be positive, got %g", c.Current.TransducerFactor)
	default:
		errs = append(errs, fmt.Errorf("current.kind must be %q or %q, got %q", CurrentKindCT, CurrentKindTransducer, c.Current.Kind))
	}
	check(c.Current.Channel >= 0, "current.channel must be non-negative, got %d", c.Current.Channel)
	check(c.Current.VRef > 0, "current.vref must be positive, got %g", c.Current.VRef)

	check(c.Power.Period > 0, "power.period must be positive, got %s", c.Power.Period)
	check(c.Power.NoiseFloor >= 0, "power.noise_floor must not be negative, got %g", c.Power.NoiseFloor)
	check(c.Display.History > 1, "display.history must be at least 2, got %d", c.Display.History)

	return errors.Join(errs...)
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}

	if c.ADC.Driver == "" {
		c.ADC.Driver = def.ADC.Driver
	}
	if c.ADC.SPIFrequency == 0 {
		c.ADC.SPIFrequency = def.ADC.SPIFrequency
	}
	if c.ADC.Port == "" {
		c.ADC.Port = def.ADC.Port
	}
	if c.ADC.BaudRate == 0 {
		c.ADC.BaudRate = def.ADC.BaudRate
	}
	if c.ADC.Bits == 0 {
		c.ADC.Bits = def.ADC.Bits
	}
	if c.ADC.Timeout == 0 {
		c.ADC.Timeout = def.ADC.Timeout
	}

	if c.Voltage.VRef == 0 {
		c.Voltage.VRef = def.Voltage.VRef
	}
	if c.Voltage.Samples == 0 {
		c.Voltage.Samples = def.Voltage.Samples
	}
	if c.Voltage.Calibration == 0 {
		c.Voltage.Calibration = def.Voltage.Calibration
	}
	if c.Voltage.ExpectedMainsRMS == 0 {
		c.Voltage.ExpectedMainsRMS = def.Voltage.ExpectedMainsRMS
	}
	if c.Voltage.Waveform.Samples == 0 {
		c.Voltage.Waveform.Samples = def.Voltage.Waveform.Samples
	}
	if c.Voltage.Waveform.Scale == 0 {
		c.Voltage.Waveform.Scale = def.Voltage.Waveform.Scale
	}

	if c.Current.Kind == "" {
		c.Current.Kind = def.Current.Kind
	}
	if c.Current.VRef == 0 {
		c.Current.VRef = def.Current.VRef
	}
	if c.Current.Samples == 0 {
		c.Current.Samples = def.Current.Samples
	}
	if c.Current.MaxRatedCurrent == 0 {
		c.Current.MaxRatedCurrent = def.Current.MaxRatedCurrent
	}
	if c.Current.MaxSensorVoltage == 0 {
		c.Current.MaxSensorVoltage = def.Current.MaxSensorVoltage
	}
	if c.Current.VoltageCalibration == 0 {
		c.Current.VoltageCalibration = def.Current.VoltageCalibration
	}
	if c.Current.CurrentCalibration == 0 {
		c.Current.CurrentCalibration = def.Current.CurrentCalibration
	}
	if c.Current.TransducerFactor == 0 {
		c.Current.TransducerFactor = def.Current.TransducerFactor
	}

	if c.Power.Period == 0 {
		c.Power.Period = def.Power.Period
	}

	if c.Output.Path == "" {
		c.Output.Path = def.Output.Path
	}

	if c.Display.History == 0 {
		c.Display.History = def.Display.History
	}

	if c.Mock.Frequency == 0 {
		c.Mock.Frequency = def.Mock.Frequency
	}
}
