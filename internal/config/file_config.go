package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// fileValues mirrors the optional YAML config file. Unset fields fall back
// to the env-var/default layer.
type fileValues struct {
	AppName         string `yaml:"appName"`
	DataFolder      string `yaml:"dataFolder"`
	BaseURL         string `yaml:"baseURL"`
	RequestTimeout  string `yaml:"requestTimeout"`
	RefreshInterval string `yaml:"refreshInterval"`
	VerifyTimeout   string `yaml:"verifyTimeout"`
}

type fileConfig struct {
	mainConfig
	values fileValues
}

var _ Config = fileConfig{}

// NewFromFile loads configuration from a YAML file layered over the
// environment defaults.
func NewFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "[NewFromFile] read config file")
	}
	var values fileValues
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, errors.Wrap(err, "[NewFromFile] parse config file")
	}
	return fileConfig{values: values}, nil
}

func (c fileConfig) GetAppName() string {
	if c.values.AppName != "" {
		return c.values.AppName
	}
	return c.mainConfig.GetAppName()
}

func (c fileConfig) GetDataFolder() string {
	if c.values.DataFolder != "" {
		return c.values.DataFolder
	}
	return c.mainConfig.GetDataFolder()
}

func (c fileConfig) GetBaseURL() string {
	if c.values.BaseURL != "" {
		return c.values.BaseURL
	}
	return c.mainConfig.GetBaseURL()
}

func (c fileConfig) GetRequestTimeout() time.Duration {
	return parseDuration(c.values.RequestTimeout, c.mainConfig.GetRequestTimeout())
}

func (c fileConfig) GetRefreshInterval() time.Duration {
	return parseDuration(c.values.RefreshInterval, c.mainConfig.GetRefreshInterval())
}

func (c fileConfig) GetVerifyTimeout() time.Duration {
	return parseDuration(c.values.VerifyTimeout, c.mainConfig.GetVerifyTimeout())
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
