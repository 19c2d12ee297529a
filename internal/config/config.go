package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Analysis AnalysisConfig `validate:"required"`
	Database DatabaseConfig
	Server   ServerConfig `validate:"required"`
	Data     DataConfig
	LogLevel string `validate:"oneof=ERROR WARN INFO DEBUG TRACE"`
}

// AnalysisConfig holds the default parameters of an audit run
type AnalysisConfig struct {
	Alpha             float64 `validate:"gte=0"`
	MinN              int     `validate:"gte=0"`
	CutN              int     `validate:"gte=0"`
	Permutations      int     `validate:"gt=0"`
	BootstrapResample int     `validate:"gt=0"`
	PSADraws          int     `validate:"gt=0"`
	PSAConcentration  float64 `validate:"gt=0"`
	Seed              int64
	Workers           int     `validate:"gte=1"`
	WilsonZ           float64 `validate:"gt=0"`
	TornadoAlphaFrac  float64 `validate:"gte=0"`
	TornadoBaselinePP float64 `validate:"gte=0,lte=1"`
	StratumKey        string
}

// DatabaseConfig holds database connection settings. An empty URL disables
// the postgres observation source.
type DatabaseConfig struct {
	URL string `validate:"omitempty,url"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port            string `validate:"required,numeric"`
	GinMode         string `validate:"oneof=debug release test"`
	ShutdownTimeout time.Duration
}

// DataConfig holds file input settings
type DataConfig struct {
	ObservationFile string
	Sheet           string
	Period          string
	// Baseline overrides p_BR for file sources; nil uses the pooled rate.
	Baseline *float64 `validate:"omitempty,gte=0,lte=1"`
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	env := &envReader{}

	config := &Config{
		Analysis: loadAnalysisConfig(env),
		Database: DatabaseConfig{URL: env.getString("DATABASE_URL", "")},
		Server:   loadServerConfig(env),
		Data:     loadDataConfig(env),
		LogLevel: strings.ToUpper(env.getString("LOG_LEVEL", "INFO")),
	}

	if len(env.problems) > 0 {
		return nil, errors.ConfigInvalid(strings.Join(env.problems, "; "))
	}
	if err := Validate(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// Default returns the configuration used when no variable is set
func Default() *Config {
	env := &envReader{lookup: func(string) (string, bool) { return "", false }}
	return &Config{
		Analysis: loadAnalysisConfig(env),
		Server:   loadServerConfig(env),
		Data:     loadDataConfig(env),
		LogLevel: "INFO",
	}
}

func loadAnalysisConfig(env *envReader) AnalysisConfig {
	return AnalysisConfig{
		Alpha:             env.getFloat("ALPHA", 0.8),
		MinN:              env.getInt("MIN_N", 50),
		CutN:              env.getInt("CUT_N", 50),
		Permutations:      env.getInt("PERMUTATIONS", 10000),
		BootstrapResample: env.getInt("BOOTSTRAP", 2000),
		PSADraws:          env.getInt("PSA_DRAWS", 2000),
		PSAConcentration:  env.getFloat("PSA_CONCENTRATION", 100),
		Seed:              int64(env.getInt("SEED", 42)),
		Workers:           env.getInt("WORKERS", 4),
		WilsonZ:           env.getFloat("WILSON_Z", 1.96),
		TornadoAlphaFrac:  env.getFloat("TORNADO_ALPHA_FRAC", 0.10),
		TornadoBaselinePP: env.getFloat("TORNADO_BASELINE_PP", 0.01),
		StratumKey:        env.getString("STRATUM_KEY", "region"),
	}
}

func loadServerConfig(env *envReader) ServerConfig {
	return ServerConfig{
		Port:            env.getString("PORT", "8080"),
		GinMode:         env.getString("GIN_MODE", "release"),
		ShutdownTimeout: env.getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func loadDataConfig(env *envReader) DataConfig {
	data := DataConfig{
		ObservationFile: env.getString("OBSERVATION_FILE", ""),
		Sheet:           env.getString("OBSERVATION_SHEET", ""),
		Period:          env.getString("PERIOD", ""),
	}
	if _, ok := env.lookupValue("BASELINE"); ok {
		p := env.getFloat("BASELINE", 0)
		data.Baseline = &p
	}
	return data
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags of c
func Validate(c *Config) error {
	if err := validate.Struct(c); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	return nil
}

// envReader parses environment variables, collecting malformed values
// instead of silently falling back to defaults.
type envReader struct {
	lookup   func(string) (string, bool)
	problems []string
}

func (e *envReader) lookupValue(key string) (string, bool) {
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func (e *envReader) getString(key, defaultValue string) string {
	if value, ok := e.lookupValue(key); ok {
		return value
	}
	return defaultValue
}

func (e *envReader) getInt(key string, defaultValue int) int {
	value, ok := e.lookupValue(key)
	if !ok {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		e.problems = append(e.problems, fmt.Sprintf("%s=%q is not an integer", key, value))
		return defaultValue
	}
	return intValue
}

func (e *envReader) getFloat(key string, defaultValue float64) float64 {
	value, ok := e.lookupValue(key)
	if !ok {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		e.problems = append(e.problems, fmt.Sprintf("%s=%q is not a number", key, value))
		return defaultValue
	}
	return floatValue
}

func (e *envReader) getDuration(key string, defaultValue time.Duration) time.Duration {
	value, ok := e.lookupValue(key)
	if !ok {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		e.problems = append(e.problems, fmt.Sprintf("%s=%q is not a duration", key, value))
		return defaultValue
	}
	return duration
}
