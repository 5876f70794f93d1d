package config

import "time"

type Config interface {
	EnvConfig
	APIConfig
	SessionConfig
}

type EnvConfig interface {
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
}

type APIConfig interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
}

type SessionConfig interface {
	GetRefreshInterval() time.Duration
	GetVerifyTimeout() time.Duration
}

type mainConfig struct {
	EnvVars
	API
	Session
}

func New() Config {
	return mainConfig{}
}
