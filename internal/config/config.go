package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Format  string        `mapstructure:"format" yaml:"format" json:"format"` // ndjson or text, default for --format
	Log     LogConfig     `mapstructure:"log" yaml:"log" json:"log"`
	Serial  SerialConfig  `mapstructure:"serial" yaml:"serial" json:"serial"`
	Payment PaymentConfig `mapstructure:"payment" yaml:"payment" json:"payment"`
	HTTP    HTTPConfig    `mapstructure:"http" yaml:"http" json:"http"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store" json:"store"`
}

// LogConfig controls the zap logger
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"` // json, console, auto
}

// SerialConfig describes the payment device connection
type SerialConfig struct {
	Path         string        `mapstructure:"path" yaml:"path" json:"path"`
	Baud         int           `mapstructure:"baud" yaml:"baud" json:"baud"`
	ReconnectMin time.Duration `mapstructure:"reconnect_min" yaml:"reconnect_min" json:"reconnect_min"`
	ReconnectMax time.Duration `mapstructure:"reconnect_max" yaml:"reconnect_max" json:"reconnect_max"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
}

// PaymentConfig holds pricing and session policy
type PaymentConfig struct {
	PulseUnitValue int           `mapstructure:"pulse_unit_value" yaml:"pulse_unit_value" json:"pulse_unit_value"`
	SockPrice      int           `mapstructure:"sock_price" yaml:"sock_price" json:"sock_price"`
	ChargeTimeout  time.Duration `mapstructure:"charge_timeout" yaml:"charge_timeout" json:"charge_timeout"`
	ExpireTick     time.Duration `mapstructure:"expire_tick" yaml:"expire_tick" json:"expire_tick"`
	Rounding       string        `mapstructure:"rounding" yaml:"rounding" json:"rounding"` // reject, truncate
	Mismatch       string        `mapstructure:"mismatch" yaml:"mismatch" json:"mismatch"` // flag, accept
}

// HTTPConfig holds the kiosk API listener settings
type HTTPConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr" json:"addr"`
	StaticDir string `mapstructure:"static_dir" yaml:"static_dir" json:"static_dir"`
	RateLimit int    `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"` // requests per minute per IP, 0 disables
}

// StoreConfig holds the registration database settings
type StoreConfig struct {
	Path        string        `mapstructure:"path" yaml:"path" json:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout" json:"busy_timeout"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Format: "text",
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Serial: SerialConfig{
			Path:         "/dev/ttyACM0",
			Baud:         9600,
			ReconnectMin: 500 * time.Millisecond,
			ReconnectMax: 10 * time.Second,
			WriteTimeout: 2 * time.Second,
		},
		Payment: PaymentConfig{
			PulseUnitValue: 10,
			SockPrice:      50,
			ChargeTimeout:  3 * time.Minute,
			ExpireTick:     time.Second,
			Rounding:       "reject",
			Mismatch:       "flag",
		},
		HTTP: HTTPConfig{
			Addr:      "0.0.0.0:3000",
			RateLimit: 600,
		},
		Store: StoreConfig{
			Path:        "kiosk.db",
			BusyTimeout: 5 * time.Second,
		},
	}
}

// Validate rejects values the runtime cannot work with
func (c *Config) Validate() error {
	var errs []error
	if c.Format != "text" && c.Format != "ndjson" {
		errs = append(errs, fmt.Errorf("format must be text or ndjson, got %q", c.Format))
	}
	if c.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud))
	}
	if c.Serial.ReconnectMin <= 0 || c.Serial.ReconnectMax < c.Serial.ReconnectMin {
		errs = append(errs, fmt.Errorf("serial.reconnect_min/max invalid: %s/%s", c.Serial.ReconnectMin, c.Serial.ReconnectMax))
	}
	if c.Serial.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("serial.write_timeout must not be negative, got %s", c.Serial.WriteTimeout))
	}
	if c.Payment.PulseUnitValue <= 0 {
		errs = append(errs, fmt.Errorf("payment.pulse_unit_value must be positive, got %d", c.Payment.PulseUnitValue))
	}
	if c.Payment.SockPrice < 0 {
		errs = append(errs, fmt.Errorf("payment.sock_price must not be negative, got %d", c.Payment.SockPrice))
	}
	if c.Payment.ChargeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("payment.charge_timeout must be positive, got %s", c.Payment.ChargeTimeout))
	}
	if c.Payment.ExpireTick <= 0 {
		errs = append(errs, fmt.Errorf("payment.expire_tick must be positive, got %s", c.Payment.ExpireTick))
	}
	switch c.Payment.Rounding {
	case "reject", "truncate":
	default:
		errs = append(errs, fmt.Errorf("payment.rounding must be reject or truncate, got %q", c.Payment.Rounding))
	}
	switch c.Payment.Mismatch {
	case "flag", "accept":
	default:
		errs = append(errs, fmt.Errorf("payment.mismatch must be flag or accept, got %q", c.Payment.Mismatch))
	}
	if c.HTTP.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("http.rate_limit must not be negative, got %d", c.HTTP.RateLimit))
	}
	return errors.Join(errs...)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix("KIOSK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Defaults double as the key registry AutomaticEnv needs for Unmarshal
	cfg := Default()
	v.SetDefault("format", cfg.Format)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("serial.path", cfg.Serial.Path)
	v.SetDefault("serial.baud", cfg.Serial.Baud)
	v.SetDefault("serial.reconnect_min", cfg.Serial.ReconnectMin)
	v.SetDefault("serial.reconnect_max", cfg.Serial.ReconnectMax)
	v.SetDefault("serial.write_timeout", cfg.Serial.WriteTimeout)
	v.SetDefault("payment.pulse_unit_value", cfg.Payment.PulseUnitValue)
	v.SetDefault("payment.sock_price", cfg.Payment.SockPrice)
	v.SetDefault("payment.charge_timeout", cfg.Payment.ChargeTimeout)
	v.SetDefault("payment.expire_tick", cfg.Payment.ExpireTick)
	v.SetDefault("payment.rounding", cfg.Payment.Rounding)
	v.SetDefault("payment.mismatch", cfg.Payment.Mismatch)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.static_dir", cfg.HTTP.StaticDir)
	v.SetDefault("http.rate_limit", cfg.HTTP.RateLimit)
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("store.busy_timeout", cfg.Store.BusyTimeout)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load loads configuration from the first config file found, then the
// environment (KIOSK_SERIAL_PATH, KIOSK_PAYMENT_CHARGE_TIMEOUT, ...)
func Load() (*Config, error) {
	v := newViper()

	if path := findConfigFile(); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	return decode(v)
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return decode(v)
}

// ConfigFile returns the path to the config file Load would use
func ConfigFile() string {
	return findConfigFile()
}

// searchPaths lists candidate files, highest precedence first
func searchPaths() []string {
	var paths []string
	paths = append(paths, ".kiosk.yaml", ".kiosk.yml", "kiosk.yaml")
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".kiosk.yaml"), filepath.Join(home, ".kiosk.yml"))
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "kiosk", "kiosk.yaml"))
	}
	paths = append(paths, "/etc/kiosk/kiosk.yaml")
	return paths
}

func findConfigFile() string {
	for _, p := range searchPaths() {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
