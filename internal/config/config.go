package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/tract-series/internal/blob"
	"github.com/sells-group/tract-series/internal/tract"
)

// ErrInvalid is returned by Validate when any parameter is bad.
var ErrInvalid = errors.New("invalid configuration")

// Supported year range of the tract statistics.
const (
	MinYear = 2010
	MaxYear = 2020
)

// Config holds the full application configuration.
type Config struct {
	DataDir   string          `yaml:"data_dir" mapstructure:"data_dir" validate:"required"`
	Census    CensusConfig    `yaml:"census" mapstructure:"census"`
	Crosswalk CrosswalkConfig `yaml:"crosswalk" mapstructure:"crosswalk"`
	Series    SeriesConfig    `yaml:"series" mapstructure:"series"`
	Blob      blob.Config     `yaml:"blob" mapstructure:"blob"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// CensusConfig selects the statistics to download.
type CensusConfig struct {
	APIKey    string   `yaml:"api_key" mapstructure:"api_key"`
	BaseURL   string   `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	Dataset   string   `yaml:"dataset" mapstructure:"dataset" validate:"required"`
	Variables []string `yaml:"variables" mapstructure:"variables" validate:"omitempty,unique,dive,required"`
	StartYear int      `yaml:"start_year" mapstructure:"start_year"`
	EndYear   int      `yaml:"end_year" mapstructure:"end_year"`
	States    []string `yaml:"states" mapstructure:"states" validate:"required,min=1"`
	IncludeDC bool     `yaml:"include_dc" mapstructure:"include_dc"`
	IncludePR bool     `yaml:"include_pr" mapstructure:"include_pr"`
}

// CrosswalkConfig controls the crosswalk artifacts.
type CrosswalkConfig struct {
	Precision       int    `yaml:"precision" mapstructure:"precision" validate:"gte=0,lte=10"`
	OverwriteLocal  bool   `yaml:"overwrite_local" mapstructure:"overwrite_local"`
	OverwriteRemote bool   `yaml:"overwrite_remote" mapstructure:"overwrite_remote"`
	Dir             string `yaml:"dir" mapstructure:"dir"`
}

// SeriesConfig controls the statistics run.
type SeriesConfig struct {
	// OverwriteLocal downloads statistics again even when cached.
	OverwriteLocal  bool   `yaml:"overwrite_local" mapstructure:"overwrite_local"`
	MissingSentinel string `yaml:"missing_sentinel" mapstructure:"missing_sentinel" validate:"required"`
	// Output overrides the path derived from the run parameters.
	Output string `yaml:"output" mapstructure:"output"`
}

// FetchConfig configures remote downloads.
type FetchConfig struct {
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gt=0"`
	MaxRetries          int     `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RatePerSec          float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec" validate:"gt=0"`
	UserAgent           string  `yaml:"user_agent" mapstructure:"user_agent"`
	TigerBaseURL        string  `yaml:"tiger_base_url" mapstructure:"tiger_base_url" validate:"required,url"`
	RelationshipBaseURL string  `yaml:"relationship_base_url" mapstructure:"relationship_base_url" validate:"required,url"`
}

// CacheConfig configures the local sqlite cache.
type CacheConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// MetricsConfig configures run metrics and notifications.
type MetricsConfig struct {
	// Textfile is a node_exporter textfile collector path.
	Textfile   string `yaml:"textfile" mapstructure:"textfile"`
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url" validate:"omitempty,url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=json console"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRACTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data_dir", "data")
	v.SetDefault("census.api_key", "")
	v.SetDefault("census.base_url", "https://api.census.gov/data")
	v.SetDefault("census.dataset", "acs/acs5")
	v.SetDefault("census.variables", []string{})
	v.SetDefault("census.start_year", 2015)
	v.SetDefault("census.end_year", 2020)
	v.SetDefault("census.states", []string{tract.AllSelector})
	v.SetDefault("census.include_dc", true)
	v.SetDefault("census.include_pr", false)
	v.SetDefault("crosswalk.precision", 3)
	v.SetDefault("crosswalk.overwrite_local", false)
	v.SetDefault("crosswalk.overwrite_remote", false)
	v.SetDefault("crosswalk.dir", "")
	v.SetDefault("series.overwrite_local", false)
	v.SetDefault("series.missing_sentinel", "NaN")
	v.SetDefault("series.output", "")
	v.SetDefault("blob.provider", "none")
	v.SetDefault("blob.bucket", "")
	v.SetDefault("blob.prefix", "crosswalks")
	v.SetDefault("blob.credentials_file", "")
	v.SetDefault("blob.dir", "")
	v.SetDefault("fetch.timeout_secs", 600)
	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.rate_per_sec", 5.0)
	v.SetDefault("fetch.user_agent", "tract-series/1.0")
	v.SetDefault("fetch.tiger_base_url", "https://www2.census.gov/geo/tiger")
	v.SetDefault("fetch.relationship_base_url", "https://www2.census.gov/geo/docs/maps-data/data/rel2020/tract")
	v.SetDefault("cache.path", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("metrics.webhook_url", "")
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

	return &cfg, nil
}

// Validate checks the parameters a command needs. Mode is "crosswalk" or
// "series". Every problem is reported in one error wrapping ErrInvalid.
func (c *Config) Validate(mode string) error {
	var problems []string

	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return eris.Wrap(err, "config: validate")
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	if _, err := c.States(); err != nil {
		problems = append(problems, fmt.Sprintf("census.states: %v", err))
	}
	if c.Blob.Provider == "gcs" && c.Blob.Bucket == "" {
		problems = append(problems, "blob.bucket is required for the gcs provider")
	}
	if c.Blob.Provider == "file" && c.Blob.Dir == "" {
		problems = append(problems, "blob.dir is required for the file provider")
	}

	switch mode {
	case "crosswalk":
	case "series":
		if len(c.Census.Variables) == 0 {
			problems = append(problems, "census.variables is required")
		}
		if c.Census.StartYear < MinYear || c.Census.StartYear > MaxYear {
			problems = append(problems, fmt.Sprintf("census.start_year must be between %d and %d", MinYear, MaxYear))
		}
		if c.Census.EndYear < MinYear || c.Census.EndYear > MaxYear {
			problems = append(problems, fmt.Sprintf("census.end_year must be between %d and %d", MinYear, MaxYear))
		}
		if c.Census.StartYear > c.Census.EndYear {
			problems = append(problems, "census.start_year must not be after census.end_year")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Wrapf(ErrInvalid, "config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// newValidator reports fields by their mapstructure keys, so namespaces
// read like the config file ("census.base_url").
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// describe turns a validator error into "census.base_url must be a url".
func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "url":
		return field + " must be a url"
	case "unique":
		return field + " must not contain duplicates"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "gt", "gte", "lt", "lte", "min", "max":
		return fmt.Sprintf("%s must be %s %s", field, comparison(fe.Tag()), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func comparison(tag string) string {
	switch tag {
	case "gt":
		return ">"
	case "gte", "min":
		return ">="
	case "lt":
		return "<"
	default:
		return "<="
	}
}

// States resolves the configured state selection.
func (c *Config) States() ([]tract.State, error) {
	return tract.ResolveStates(c.Census.States, c.Census.IncludeDC, c.Census.IncludePR)
}

// Years lists every configured year in order.
func (c *Config) Years() []int {
	var years []int
	for y := c.Census.StartYear; y <= c.Census.EndYear; y++ {
		years = append(years, y)
	}
	return years
}

// CrosswalkDir is where crosswalk artifacts are kept locally.
func (c *Config) CrosswalkDir() string {
	if c.Crosswalk.Dir != "" {
		return c.Crosswalk.Dir
	}
	return filepath.Join(c.DataDir, "crosswalks")
}

// CachePath is the sqlite cache location.
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(c.DataDir, "cache.db")
}

// RawDir holds downloaded source files.
func (c *Config) RawDir(kind string) string {
	return filepath.Join(c.DataDir, "raw", kind)
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
