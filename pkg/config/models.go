package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Reaper    ReaperConfig
	LogLevel  string `mapstructure:"logLevel"`
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	// Required gates the /ws upgrade behind a valid JWT. When false the
	// socket-level authenticate event is the only identity source.
	Required  bool   `mapstructure:"required"`
	JWTSecret string `mapstructure:"jwtSecret"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	SendBuffer  int           `mapstructure:"sendBuffer"`
}

type ReaperConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	PresenceTTL time.Duration `mapstructure:"presenceTTL"`
}
