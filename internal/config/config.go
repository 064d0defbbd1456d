package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"buildout/internal/buildout"
	"buildout/internal/database"
	"buildout/internal/table"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig         `yaml:"log" mapstructure:"log"`
	Engine   EngineConfig      `yaml:"engine" mapstructure:"engine"`
	Zoning   ZoningConfig      `yaml:"zoning" mapstructure:"zoning"`
	Fields   table.FieldMap    `yaml:"fields" mapstructure:"fields"`
	Database database.DBConfig `yaml:"database" mapstructure:"database"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// EngineConfig configures the buildout engine.
type EngineConfig struct {
	Workers         int  `yaml:"workers" mapstructure:"workers"`
	DropUnparceled  bool `yaml:"drop_unparceled" mapstructure:"drop_unparceled"`
	DropUnwatershed bool `yaml:"drop_unwatershed" mapstructure:"drop_unwatershed"`
	RequireMinLot   bool `yaml:"require_min_lot" mapstructure:"require_min_lot"`
}

// Filters returns the fragment filters for the engine.
func (e EngineConfig) Filters() buildout.Filters {
	return buildout.Filters{
		DropUnparceled:  e.DropUnparceled,
		DropUnwatershed: e.DropUnwatershed,
		RequireMinLot:   e.RequireMinLot,
	}
}

// ZoningConfig selects the code table.
type ZoningConfig struct {
	Jurisdiction string `yaml:"jurisdiction" mapstructure:"jurisdiction"`
	Tables       string `yaml:"tables" mapstructure:"tables"`
}

// Load reads configuration from buildout.yaml, a .env file and BUILDOUT_*
// environment variables, in increasing precedence.
func Load() (*Config, error) {
	if err := loadEnvFile(".env"); err != nil {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("buildout")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BUILDOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("engine.workers", 0)
	v.SetDefault("engine.drop_unparceled", true)
	v.SetDefault("engine.drop_unwatershed", true)
	v.SetDefault("engine.require_min_lot", false)
	v.SetDefault("zoning.jurisdiction", "")
	v.SetDefault("zoning.tables", "")

	fm := table.DefaultFieldMap()
	v.SetDefault("fields.parcel_id", fm.ParcelID)
	v.SetDefault("fields.zone_id", fm.ZoneID)
	v.SetDefault("fields.min_lot", fm.MinLot)
	v.SetDefault("fields.res_density", fm.ResDensity)
	v.SetDefault("fields.shape_area", fm.ShapeArea)
	v.SetDefault("fields.shape_length", fm.ShapeLength)
	v.SetDefault("fields.septic_density", fm.SepticDensity)
	v.SetDefault("fields.system", fm.System)
	v.SetDefault("fields.sewer_join", fm.SewerJoin)
	v.SetDefault("fields.parcel_join", fm.ParcelJoin)
	v.SetDefault("fields.watershed_join", fm.WatershedJoin)

	v.SetDefault("database.driver", database.DriverSQLite)
	v.SetDefault("database.path", "buildout.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "1521")
	v.SetDefault("database.service", "XE")
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.wallet_location", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Engine.Workers < 0 {
		return eris.Errorf("config: engine.workers must be >= 0, got %d", c.Engine.Workers)
	}
	switch c.Database.Driver {
	case database.DriverSQLite, database.DriverOracle:
	default:
		return eris.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}
	if c.Fields.ParcelID == "" || c.Fields.ZoneID == "" || c.Fields.MinLot == "" || c.Fields.ShapeArea == "" {
		return eris.New("config: fields.parcel_id, zone_id, min_lot and shape_area must be set")
	}
	return nil
}

// InitLogger sets up the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
