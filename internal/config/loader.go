// Package config holds the engine settings and their INI persistence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// Config collects every tunable the engine exposes. Zero values are not
// usable defaults; start from NewDefaultConfig.
type Config struct {
	// Matching
	Similarity     float64   // minimum template match score
	MinOverlap     float64   // mutual overlap for same-region tests
	ClusterOverlap float64   // looser overlap used when clustering sites
	Scales         []float64 // template scales tried during matching
	MaxMatches     int       // cap on matches returned per template

	// Timing
	AutoWaitTimeout time.Duration // driver-side wait for anchored finds
	PollInterval    time.Duration // delay between engine probe rounds
	ClickDelay      time.Duration // settle time after a click

	// State tracking
	VerifyMarginPct float64 // region margin when re-probing after a click
	ButtonMargin    int     // pixel margin when re-probing a button

	// Vision
	Monitor   int           // capture monitor index
	FrameTTL  time.Duration // how long a captured frame stays current
	Grayscale bool          // convert frames before correlation

	// Observability
	LogLevel       string
	LogDir         string
	JournalPath    string
	JournalEnabled bool

	// Templates
	TemplateDir    string
	RegistryPath   string
	WatchTemplates bool
}

// NewDefaultConfig creates a config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Similarity:      0.85,
		MinOverlap:      0.9,
		ClusterOverlap:  0.5,
		Scales:          []float64{1.0},
		MaxMatches:      64,
		AutoWaitTimeout: 3 * time.Second,
		PollInterval:    time.Second,
		ClickDelay:      250 * time.Millisecond,
		VerifyMarginPct: 0.2,
		ButtonMargin:    15,
		Monitor:         0,
		FrameTTL:        100 * time.Millisecond,
		Grayscale:       true,
		LogLevel:        "info",
		LogDir:          "logs",
		JournalPath:     "rguils.db",
		JournalEnabled:  true,
		TemplateDir:     "templates",
		RegistryPath:    "templates.yaml",
		WatchTemplates:  false,
	}
}

// LoadFromINI loads configuration from an INI file. Missing keys keep
// their defaults.
func LoadFromINI(path string) (*Config, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := NewDefaultConfig()

	matching := cfg.Section("matching")
	config.Similarity = matching.Key("similarity").MustFloat64(config.Similarity)
	config.MinOverlap = matching.Key("minOverlap").MustFloat64(config.MinOverlap)
	config.ClusterOverlap = matching.Key("clusterOverlap").MustFloat64(config.ClusterOverlap)
	config.MaxMatches = matching.Key("maxMatches").MustInt(config.MaxMatches)
	if scales := matching.Key("scales").MustString(""); scales != "" {
		config.Scales, err = parseScales(scales)
		if err != nil {
			return nil, fmt.Errorf("failed to parse scales: %w", err)
		}
	}

	timing := cfg.Section("timing")
	config.AutoWaitTimeout = timing.Key("autoWaitTimeout").MustDuration(config.AutoWaitTimeout)
	config.PollInterval = timing.Key("pollInterval").MustDuration(config.PollInterval)
	config.ClickDelay = timing.Key("clickDelay").MustDuration(config.ClickDelay)

	tracking := cfg.Section("tracking")
	config.VerifyMarginPct = tracking.Key("verifyMarginPct").MustFloat64(config.VerifyMarginPct)
	config.ButtonMargin = tracking.Key("buttonMargin").MustInt(config.ButtonMargin)

	vision := cfg.Section("vision")
	config.Monitor = vision.Key("monitor").MustInt(config.Monitor)
	config.FrameTTL = vision.Key("frameTTL").MustDuration(config.FrameTTL)
	config.Grayscale = vision.Key("grayscale").MustBool(config.Grayscale)

	observability := cfg.Section("observability")
	config.LogLevel = observability.Key("logLevel").MustString(config.LogLevel)
	config.LogDir = observability.Key("logDir").MustString(config.LogDir)
	config.JournalPath = observability.Key("journalPath").MustString(config.JournalPath)
	config.JournalEnabled = observability.Key("journalEnabled").MustBool(config.JournalEnabled)

	templates := cfg.Section("templates")
	config.TemplateDir = templates.Key("templateDir").MustString(config.TemplateDir)
	config.RegistryPath = templates.Key("registryPath").MustString(config.RegistryPath)
	config.WatchTemplates = templates.Key("watchTemplates").MustBool(config.WatchTemplates)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveToINI saves configuration to an INI file.
func SaveToINI(config *Config, path string) error {
	cfg := ini.Empty()

	matching := cfg.Section("matching")
	matching.Key("similarity").SetValue(formatFloat(config.Similarity))
	matching.Key("minOverlap").SetValue(formatFloat(config.MinOverlap))
	matching.Key("clusterOverlap").SetValue(formatFloat(config.ClusterOverlap))
	matching.Key("maxMatches").SetValue(strconv.Itoa(config.MaxMatches))
	matching.Key("scales").SetValue(formatScales(config.Scales))

	timing := cfg.Section("timing")
	timing.Key("autoWaitTimeout").SetValue(config.AutoWaitTimeout.String())
	timing.Key("pollInterval").SetValue(config.PollInterval.String())
	timing.Key("clickDelay").SetValue(config.ClickDelay.String())

	tracking := cfg.Section("tracking")
	tracking.Key("verifyMarginPct").SetValue(formatFloat(config.VerifyMarginPct))
	tracking.Key("buttonMargin").SetValue(strconv.Itoa(config.ButtonMargin))

	vision := cfg.Section("vision")
	vision.Key("monitor").SetValue(strconv.Itoa(config.Monitor))
	vision.Key("frameTTL").SetValue(config.FrameTTL.String())
	vision.Key("grayscale").SetValue(strconv.FormatBool(config.Grayscale))

	observability := cfg.Section("observability")
	observability.Key("logLevel").SetValue(config.LogLevel)
	observability.Key("logDir").SetValue(config.LogDir)
	observability.Key("journalPath").SetValue(config.JournalPath)
	observability.Key("journalEnabled").SetValue(strconv.FormatBool(config.JournalEnabled))

	templates := cfg.Section("templates")
	templates.Key("templateDir").SetValue(config.TemplateDir)
	templates.Key("registryPath").SetValue(config.RegistryPath)
	templates.Key("watchTemplates").SetValue(strconv.FormatBool(config.WatchTemplates))

	return cfg.SaveTo(path)
}

// ApplyEnv overrides select settings from RGUILS_* environment
// variables. Command wrappers call this after loading the INI so a
// deployment can retarget paths without editing the file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("RGUILS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("RGUILS_JOURNAL_PATH"); v != "" {
		c.JournalPath = v
	}
	if v := os.Getenv("RGUILS_TEMPLATE_DIR"); v != "" {
		c.TemplateDir = v
	}
	if v := os.Getenv("RGUILS_REGISTRY"); v != "" {
		c.RegistryPath = v
	}
	if v := os.Getenv("RGUILS_MONITOR"); v != "" {
		if monitor, err := strconv.Atoi(v); err == nil {
			c.Monitor = monitor
		}
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Similarity < 0 || c.Similarity > 1 {
		return fmt.Errorf("similarity %v outside [0,1]", c.Similarity)
	}
	if c.MinOverlap <= 0 || c.MinOverlap > 1 {
		return fmt.Errorf("minOverlap %v outside (0,1]", c.MinOverlap)
	}
	if c.ClusterOverlap <= 0 || c.ClusterOverlap > 1 {
		return fmt.Errorf("clusterOverlap %v outside (0,1]", c.ClusterOverlap)
	}
	if c.VerifyMarginPct < 0 {
		return fmt.Errorf("verifyMarginPct %v negative", c.VerifyMarginPct)
	}
	if c.ButtonMargin < 0 {
		return fmt.Errorf("buttonMargin %d negative", c.ButtonMargin)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("pollInterval %v not positive", c.PollInterval)
	}
	if len(c.Scales) == 0 {
		return fmt.Errorf("scales empty")
	}
	for _, s := range c.Scales {
		if s <= 0 {
			return fmt.Errorf("scale %v not positive", s)
		}
	}
	return nil
}

func parseScales(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	scales := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		scales = append(scales, v)
	}
	return scales, nil
}

func formatScales(scales []float64) string {
	parts := make([]string, len(scales))
	for i, s := range scales {
		parts[i] = formatFloat(s)
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
