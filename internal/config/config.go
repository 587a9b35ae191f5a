package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"Nifty50Snapshot/internal/calendar"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Universe struct {
		Symbols         []string `yaml:"symbols" validate:"min=1,dive,required"`
		Suffix          string   `yaml:"suffix"`
		ReferenceSymbol string   `yaml:"reference_symbol" validate:"required"`
	} `yaml:"universe"`
	Calendar struct {
		Holidays []string `yaml:"holidays" validate:"dive,datetime=2006-01-02"`
		Timezone string   `yaml:"timezone" validate:"required,timezone"`
	} `yaml:"calendar"`
	Market struct {
		Open  string `yaml:"open" validate:"datetime=15:04"`
		Close string `yaml:"close" validate:"datetime=15:04"`
	} `yaml:"market"`
	Fetch struct {
		MaxRetries     int           `yaml:"max_retries" validate:"min=1,max=10"`
		SymbolTimeout  time.Duration `yaml:"symbol_timeout" validate:"gt=0"`
		RetryBackoff   time.Duration `yaml:"retry_backoff" validate:"gte=0"`
		HistoryDays    int           `yaml:"history_days" validate:"min=1,max=30"`
		PaceBase       time.Duration `yaml:"pace_base" validate:"gte=0"`
		PaceJitter     time.Duration `yaml:"pace_jitter" validate:"gte=0"`
		RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
	} `yaml:"fetch"`
	Validation struct {
		MaxClose float64 `yaml:"max_close" validate:"gt=0"`
	} `yaml:"validation"`
	Run struct {
		MinSuccess int `yaml:"min_success" validate:"gte=0"`
	} `yaml:"run"`
	DataSource struct {
		BaseURL string `yaml:"base_url" validate:"omitempty,url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"data_source"`
	Output struct {
		Dir     string   `yaml:"dir" validate:"required"`
		Exports []string `yaml:"exports" validate:"dive,oneof=parquet csv"`
	} `yaml:"output"`
	Log struct {
		Dir        string `yaml:"dir" validate:"required"`
		Level      string `yaml:"level" validate:"oneof=debug info warn warning error"`
		MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
		MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	} `yaml:"log"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Metrics struct {
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`
	Schedule struct {
		DailyCron string `yaml:"daily_cron" validate:"required"`
	} `yaml:"schedule"`
	Proxy string `yaml:"proxy" validate:"omitempty,url"`
}

// DefaultSymbols is the NIFTY 50 universe as Yahoo tickers.
var DefaultSymbols = []string{
	"RELIANCE.NS", "TCS.NS", "HDFCBANK.NS", "INFY.NS", "ICICIBANK.NS",
	"HINDUNILVR.NS", "ITC.NS", "SBIN.NS", "BHARTIARTL.NS", "KOTAKBANK.NS",
	"LT.NS", "AXISBANK.NS", "ASIANPAINT.NS", "MARUTI.NS", "TITAN.NS",
	"SUNPHARMA.NS", "ULTRACEMCO.NS", "BAJFINANCE.NS", "NESTLEIND.NS", "HCLTECH.NS",
	"WIPRO.NS", "POWERGRID.NS", "NTPC.NS", "TATAMOTORS.NS", "TATASTEEL.NS",
	"M&M.NS", "BAJAJFINSV.NS", "TECHM.NS", "ADANIENT.NS", "ONGC.NS",
	"COALINDIA.NS", "DIVISLAB.NS", "GRASIM.NS", "HINDALCO.NS", "INDUSINDBK.NS",
	"JSWSTEEL.NS", "BRITANNIA.NS", "CIPLA.NS", "EICHERMOT.NS", "HEROMOTOCO.NS",
	"DRREDDY.NS", "APOLLOHOSP.NS", "BPCL.NS", "ADANIPORTS.NS", "TATACONSUM.NS",
	"BAJAJ-AUTO.NS", "SHRIRAMFIN.NS", "SBILIFE.NS", "LTIM.NS", "BEL.NS",
}

// DefaultHolidays is the NSE trading holiday list for 2025.
var DefaultHolidays = []string{
	"2025-01-26",                                           // Republic Day
	"2025-02-26",                                           // Mahashivratri
	"2025-03-14", "2025-03-31",                             // Holi, Id-Ul-Fitr
	"2025-04-10", "2025-04-14", "2025-04-18",               // Mahavir Jayanti, Ambedkar Jayanti, Good Friday
	"2025-05-01",                                           // Maharashtra Day
	"2025-06-07",                                           // Bakri Id
	"2025-07-07",                                           // Muharram
	"2025-08-15", "2025-08-16", "2025-08-27",               // Independence Day, Janmashtami, Ganesh Chaturthi
	"2025-10-02", "2025-10-21", "2025-10-22", "2025-10-23", // Gandhi Jayanti, Diwali
	"2025-11-05",                                           // Guru Nanak Jayanti
	"2025-12-25",                                           // Christmas
}

// Load reads config from a YAML file over the defaults, then applies
// environment variable overrides. Keys present in the file win over the
// defaults, including explicit zeros and empty lists. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("NIFTY_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("NIFTY_LOG_DIR"); v != "" {
		cfg.Log.Dir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("BARS_BASE_URL"); v != "" {
		cfg.DataSource.BaseURL = v
	}
	if v := os.Getenv("BARS_API_KEY"); v != "" {
		cfg.DataSource.APIKey = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}
	if v := os.Getenv("CRON_DAILY"); v != "" {
		cfg.Schedule.DailyCron = v
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Universe.Symbols) == 0 {
		c.Universe.Symbols = append([]string(nil), DefaultSymbols...)
	}
	if c.Universe.Suffix == "" {
		c.Universe.Suffix = ".NS"
	}
	if c.Universe.ReferenceSymbol == "" {
		c.Universe.ReferenceSymbol = "RELIANCE.NS"
	}
	if c.Calendar.Holidays == nil {
		c.Calendar.Holidays = append([]string(nil), DefaultHolidays...)
	}
	if c.Calendar.Timezone == "" {
		c.Calendar.Timezone = "Asia/Kolkata"
	}
	if c.Market.Open == "" {
		c.Market.Open = "09:15"
	}
	if c.Market.Close == "" {
		c.Market.Close = "15:30"
	}
	if c.Fetch.MaxRetries == 0 {
		c.Fetch.MaxRetries = 2
	}
	if c.Fetch.SymbolTimeout == 0 {
		c.Fetch.SymbolTimeout = 15 * time.Second
	}
	if c.Fetch.RetryBackoff == 0 {
		c.Fetch.RetryBackoff = 2 * time.Second
	}
	if c.Fetch.HistoryDays == 0 {
		c.Fetch.HistoryDays = 5
	}
	if c.Fetch.PaceBase == 0 {
		c.Fetch.PaceBase = 250 * time.Millisecond
	}
	if c.Fetch.PaceJitter == 0 {
		c.Fetch.PaceJitter = 150 * time.Millisecond
	}
	if c.Fetch.RequestTimeout == 0 {
		c.Fetch.RequestTimeout = 10 * time.Second
	}
	if c.Validation.MaxClose == 0 {
		c.Validation.MaxClose = 100000
	}
	if c.Run.MinSuccess == 0 {
		c.Run.MinSuccess = 40
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "nifty50_data"
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "logs"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 50
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 7
	}
	if c.Schedule.DailyCron == "" {
		c.Schedule.DailyCron = "0 45 16 * * 1-5"
	}
}

func (c *Config) normalize() {
	c.Log.Level = strings.ToLower(c.Log.Level)
	for i, e := range c.Output.Exports {
		c.Output.Exports[i] = strings.ToLower(strings.TrimSpace(e))
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field, _ := strings.CutPrefix(fe.Namespace(), "Config.")
			if fe.Param() != "" {
				return fmt.Errorf("%s: failed %s=%s (value %v)", field, fe.Tag(), fe.Param(), fe.Value())
			}
			return fmt.Errorf("%s: failed %s (value %v)", field, fe.Tag(), fe.Value())
		}
		return fmt.Errorf("validate config: %w", err)
	}

	if c.Run.MinSuccess > len(c.Universe.Symbols) {
		return fmt.Errorf("run.min_success %d exceeds universe size %d", c.Run.MinSuccess, len(c.Universe.Symbols))
	}
	if _, err := calendar.ParseHours(c.Market.Open, c.Market.Close, nil); err != nil {
		return fmt.Errorf("market.close: %w", err)
	}
	seen := make(map[string]bool, len(c.Universe.Symbols))
	for _, s := range c.Universe.Symbols {
		if seen[s] {
			return fmt.Errorf("universe.symbols: duplicate %s", s)
		}
		seen[s] = true
	}
	return nil
}

// Location loads the market time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return nil, fmt.Errorf("calendar.timezone: %w", err)
	}
	return loc, nil
}
