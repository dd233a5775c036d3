package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

type FetchConfig struct {
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type BuildConfig struct {
	Jobs int `mapstructure:"jobs"`
}

type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

type CheckConfig struct {
	AllowUndocumented bool `mapstructure:"allow_undocumented"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Output OutputConfig `mapstructure:"output"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
	Build  BuildConfig  `mapstructure:"build"`
	Serve  ServeConfig  `mapstructure:"serve"`
	Check  CheckConfig  `mapstructure:"check"`
	Log    LogConfig    `mapstructure:"log"`
}

// cacheBase returns the base cache directory for ferrisnav.
// Checks XDG_CACHE_HOME, then ~/.cache, then /tmp/ferrisnav as fallback.
func cacheBase() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "ferrisnav")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "ferrisnav")
	}
	return filepath.Join(os.TempDir(), "ferrisnav")
}

// DBPath returns the path to the DuckDB build ledger.
func DBPath() string {
	return filepath.Join(cacheBase(), "ledger.db")
}

// CASDir returns the path to the artifact snapshot store.
func CASDir() string {
	return filepath.Join(cacheBase(), "cas")
}

// JSONCacheDir returns the path to the rustdoc JSON cache directory.
func JSONCacheDir() string {
	return filepath.Join(cacheBase(), "json")
}

func InitializeViper() error {
	viper.SetConfigName("ferrisnav")
	viper.SetConfigType("toml")

	viper.AddConfigPath(".")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		viper.AddConfigPath(filepath.Join(xdg, "ferrisnav"))
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".config", "ferrisnav"))
	}

	setDefaults(viper.GetViper())

	viper.SetEnvPrefix("FERRISNAV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output.dir", filepath.Join("target", "doc"))
	v.SetDefault("fetch.user_agent", "ferrisnav/0.1.0")
	v.SetDefault("fetch.timeout", "60s")
	v.SetDefault("build.jobs", 4)
	v.SetDefault("serve.addr", "127.0.0.1:8080")
	v.SetDefault("check.allow_undocumented", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// stringToDurationHookFunc accepts "30s" as well as a bare number of seconds.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(f, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch f.Kind() {
		case reflect.String:
			s := strings.TrimSpace(data.(string))
			if d, err := time.ParseDuration(s); err == nil {
				return d, nil
			}
			var secs int
			if _, err := fmt.Sscanf(s, "%d", &secs); err == nil {
				return time.Duration(secs) * time.Second, nil
			}
			return nil, fmt.Errorf("invalid duration %q", s)
		case reflect.Int, reflect.Int64, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Convert(reflect.TypeOf(int64(0))).Int()) * time.Second, nil
		}
		return data, nil
	}
}

func Load() (*Config, error) {
	if err := InitializeViper(); err != nil {
		return nil, err
	}
	return decode(viper.AllSettings())
}

func decode(settings map[string]interface{}) (*Config, error) {
	var config Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: stringToDurationHookFunc(),
		Result:     &config,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Build.Jobs <= 0 {
		config.Build.Jobs = 1
	}
	return &config, nil
}
