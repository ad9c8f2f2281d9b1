// Package configpkg provides parsing functionality for environment variables.
package configpkg

import (
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
//
// The values are read by viper from a config file or environment variables.
type Config struct {
	DBDriver         string `mapstructure:"DB_DRIVER"`
	DBSource         string `mapstructure:"DB_SOURCE"`
	ServerAddress    string `mapstructure:"SERVER_ADDRESS"`
	Environment      string `mapstructure:"GO_ENV"`
	ListDefaultLimit int32  `mapstructure:"LIST_DEFAULT_LIMIT"`
	ListMaxLimit     int32  `mapstructure:"LIST_MAX_LIMIT"`
}

// Supported values of DB_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Defaults applied when neither the config file nor the environment sets a value.
const (
	DefaultListLimit    = 50
	DefaultListMaxLimit = 500
)

// Load reads configuration from file or environment variables.
func Load(path string) (Config, error) {
	var c Config

	v := viper.New()

	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("SERVER_ADDRESS", "0.0.0.0:8080")
	v.SetDefault("GO_ENV", "production")
	v.SetDefault("LIST_DEFAULT_LIMIT", DefaultListLimit)
	v.SetDefault("LIST_MAX_LIMIT", DefaultListMaxLimit)

	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		return c, err
	}

	err = v.Unmarshal(&c)
	if err != nil {
		return c, err
	}

	return c, nil
}
