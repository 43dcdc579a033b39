package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Input    InputConfig    `yaml:"input" mapstructure:"input"`
	Prepare  PrepareConfig  `yaml:"prepare" mapstructure:"prepare"`
	Compute  ComputeConfig  `yaml:"compute" mapstructure:"compute"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// AnalysisConfig configures the neighborhood sweep and significance gate.
type AnalysisConfig struct {
	KMin      int      `yaml:"k_min" mapstructure:"k_min" validate:"gte=1"`
	KMax      int      `yaml:"k_max" mapstructure:"k_max" validate:"gtefield=KMin"`
	Threshold float64  `yaml:"threshold" mapstructure:"threshold" validate:"gt=0"`
	Periods   []string `yaml:"periods" mapstructure:"periods" validate:"min=1,dive,required"`
	Branch    string   `yaml:"branch" mapstructure:"branch" validate:"oneof=pay pop"`
}

// ColumnConfig names the flow table columns.
type ColumnConfig struct {
	Origin      string `yaml:"origin" mapstructure:"origin" validate:"required"`
	Destination string `yaml:"destination" mapstructure:"destination" validate:"required"`
	Pay         string `yaml:"pay" mapstructure:"pay" validate:"required"`
	Pop         string `yaml:"pop" mapstructure:"pop" validate:"required"`
}

// InputConfig locates the unit registry and per-period flow tables.
type InputConfig struct {
	UnitsPath    string       `yaml:"units_path" mapstructure:"units_path"`
	UnitsFormat  string       `yaml:"units_format" mapstructure:"units_format" validate:"omitempty,oneof=shapefile shapefile_zip geojson csv"`
	UnitsIDField string       `yaml:"units_id_field" mapstructure:"units_id_field"`
	UnitsCode    string       `yaml:"units_code_field" mapstructure:"units_code_field"`
	UnitsName    string       `yaml:"units_name_field" mapstructure:"units_name_field"`
	FlowsPattern string       `yaml:"flows_pattern" mapstructure:"flows_pattern" validate:"required"`
	Encoding     string       `yaml:"encoding" mapstructure:"encoding"`
	Columns      ColumnConfig `yaml:"columns" mapstructure:"columns"`
}

// PrepareConfig configures standardization of a raw merged OD table.
type PrepareConfig struct {
	RawPattern string   `yaml:"raw_pattern" mapstructure:"raw_pattern"`
	Codes      []string `yaml:"codes" mapstructure:"codes"`
}

// ComputeConfig tunes the per-k computation.
type ComputeConfig struct {
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency" validate:"gte=1"`
	LagMethod   string `yaml:"lag_method" mapstructure:"lag_method" validate:"oneof=algebraic pairwise"`
	Index       string `yaml:"index" mapstructure:"index" validate:"oneof=brute quadtree"`
}

// OutputConfig configures result files.
type OutputConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir" validate:"required"`
	Format   string `yaml:"format" mapstructure:"format" validate:"oneof=csv xlsx"`
	Encoding string `yaml:"encoding" mapstructure:"encoding"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=none sqlite postgres"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url" validate:"required_unless=Driver none"`
}

// ServerConfig configures the results API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=json console"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FLOWLISA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("analysis.k_min", 1)
	v.SetDefault("analysis.k_max", 10)
	v.SetDefault("analysis.threshold", 2.58)
	v.SetDefault("analysis.periods", []string{"202203"})
	v.SetDefault("analysis.branch", "pay")
	v.SetDefault("input.units_path", "./bnd_sigungu_00_2022_2022_2Q.shp")
	v.SetDefault("input.units_format", "")
	v.SetDefault("input.units_id_field", "")
	v.SetDefault("input.units_code_field", "")
	v.SetDefault("input.units_name_field", "")
	v.SetDefault("input.flows_pattern", "./pay_pop_{period}.csv")
	v.SetDefault("input.encoding", "utf-8")
	v.SetDefault("input.columns.origin", "num_x")
	v.SetDefault("input.columns.destination", "num_y")
	v.SetDefault("input.columns.pay", "Zpay_P")
	v.SetDefault("input.columns.pop", "Zpop_P")
	v.SetDefault("prepare.raw_pattern", "./pay_pop_month/pay_pop_{period}.csv")
	v.SetDefault("prepare.codes", []string{})
	v.SetDefault("compute.concurrency", 4)
	v.SetDefault("compute.lag_method", "algebraic")
	v.SetDefault("compute.index", "brute")
	v.SetDefault("output.dir", "./out")
	v.SetDefault("output.format", "csv")
	v.SetDefault("output.encoding", "utf-8")
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.database_url", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks field constraints declared in struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return eris.Wrap(err, "config: validate")
	}
	return nil
}

// InitLogger initializes the global zap logger.
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
