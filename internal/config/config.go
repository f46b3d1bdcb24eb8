// Package config defines the application configuration and the functions
// for loading and validating it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/City-of-Helsinki/hitas-sub002/pkg/constants"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/validation"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variable overrides, e.g. HITAS_DATABASE_DSN.
const EnvPrefix = "HITAS"

// Configuration holds all configuration for the hitas service.
type Configuration struct {
	Database      DatabaseConfig      `yaml:"database"`
	Calculation   CalculationConfig   `yaml:"calculation"`
	Regulation    RegulationConfig    `yaml:"regulation"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging,omitempty"`
	Output        OutputConfig        `yaml:"output,omitempty"`
}

// DatabaseConfig selects the gorm driver and connection.
type DatabaseConfig struct {
	Driver      string `yaml:"driver"` // mysql, postgres, sqlite
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"autoMigrate"`
}

// CalculationConfig holds the statutory construction-time interest rates in percent.
type CalculationConfig struct {
	MarketPriceInterestRate       float64 `yaml:"marketPriceInterestRate"`
	ConstructionPriceInterestRate float64 `yaml:"constructionPriceInterestRate"`
}

// RegulationConfig tunes the monthly thirty-year regulation run.
type RegulationConfig struct {
	MinimumSaleCount       int               `yaml:"minimumSaleCount"`
	Workers                int               `yaml:"workers"`
	Schedule               string            `yaml:"schedule"`
	ReplacementPostalCodes map[string]string `yaml:"replacementPostalCodes"`
}

// NotificationsConfig configures release letter publishing over AMQP.
type NotificationsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routingKey"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`      // debug, info, warn, error
	Format     string `yaml:"format,omitempty"`     // json, console
	OutputFile string `yaml:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty"` // pretty, csv
}

// LoadEnvironment loads variables from the given .env files, or from .env
// in the working directory when none are given. Missing files are ignored.
func LoadEnvironment(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load environment file %s: %w", path, err)
		}
	}
	return nil
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. Environment variables prefixed with HITAS_ override
// file values.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("error reading config file, %w", err)
		}
		v.SetConfigFile(configPath)
		v.SetConfigType("yml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file, %w", err)
		}
	}

	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	return &configuration, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "hitas.db")
	v.SetDefault("database.autoMigrate", true)
	v.SetDefault("calculation.marketPriceInterestRate", constants.DefaultMarketPriceInterestRate)
	v.SetDefault("calculation.constructionPriceInterestRate", constants.DefaultConstructionPriceInterestRate)
	v.SetDefault("regulation.minimumSaleCount", constants.DefaultMinimumSalesCount)
	v.SetDefault("regulation.workers", constants.DefaultRegulationWorkers)
	v.SetDefault("regulation.schedule", constants.DefaultRegulationSchedule)
	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.url", "")
	v.SetDefault("notifications.exchange", "hitas")
	v.SetDefault("notifications.routingKey", "regulation.release-letter")
	v.SetDefault("logging.level", "")
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.outputFile", "")
	v.SetDefault("output.format", "")
}

// ValidateConfiguration performs general validation of the configuration and returns warnings
func (c *Configuration) ValidateConfiguration() []string {
	var warnings []string

	if err := validation.ValidateDatabaseDriver(c.Database.Driver); err != nil {
		warnings = append(warnings, err.Error())
	}
	if c.Database.DSN == "" {
		warnings = append(warnings, "database dsn is empty")
	}

	if w := validation.ValidateInterestRate("market price index", c.Calculation.MarketPriceInterestRate); w != "" {
		warnings = append(warnings, w)
	}
	if w := validation.ValidateInterestRate("construction price index", c.Calculation.ConstructionPriceInterestRate); w != "" {
		warnings = append(warnings, w)
	}

	if c.Regulation.MinimumSaleCount < 1 {
		warnings = append(warnings, fmt.Sprintf("regulation minimum sale count %d is below 1, using %d",
			c.Regulation.MinimumSaleCount, constants.DefaultMinimumSalesCount))
	}
	if err := validation.ValidateSchedule(c.Regulation.Schedule); err != nil {
		warnings = append(warnings, err.Error())
	}
	warnings = append(warnings, validation.ValidateReplacementPostalCodes(c.Regulation.ReplacementPostalCodes)...)

	if c.Notifications.Enabled && c.Notifications.URL == "" {
		warnings = append(warnings, "notifications are enabled but no broker url is set")
	}

	if c.Output.Format != "" {
		if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
			warnings = append(warnings, err.Error())
		}
	}
	return warnings
}
