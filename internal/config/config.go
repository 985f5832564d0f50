package config

import "time"

// Config holds server configuration values.
type Config struct {
	TCPAddr           string        `mapstructure:"tcp_addr" yaml:"tcp_addr"`
	HTTPAddr          string        `mapstructure:"http_addr" yaml:"http_addr"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	MaxPayloadBytes   int           `mapstructure:"max_payload_bytes" yaml:"max_payload_bytes"`
	OutboundQueue     int           `mapstructure:"outbound_queue" yaml:"outbound_queue"`
	HistoryLimit      int           `mapstructure:"history_limit" yaml:"history_limit"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer         string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience       string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL            time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	WebsocketEnabled  bool          `mapstructure:"websocket_enabled" yaml:"websocket_enabled"`
	// MaxConnsPerMinute caps accepted connections per listener; 0 disables the cap.
	MaxConnsPerMinute int `mapstructure:"max_connections_per_minute" yaml:"max_connections_per_minute"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		TCPAddr:           ":5555",
		HTTPAddr:          ":8080",
		DatabasePath:      "wirechat.db",
		LogLevel:          "info",
		MaxPayloadBytes:   64 << 10,
		OutboundQueue:     64,
		HistoryLimit:      100,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		JWTSecret:         "change-me",
		JWTIssuer:         "wirechat-relay",
		JWTAudience:       "wirechat-clients",
		JWTTTL:            24 * time.Hour,
		WebsocketEnabled:  true,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// WebsocketEnabled is left alone since false is its meaningful zero.
func (c *Config) UpdateFrom(other Config) {
	if other.TCPAddr != "" {
		c.TCPAddr = other.TCPAddr
	}
	if other.HTTPAddr != "" {
		c.HTTPAddr = other.HTTPAddr
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.MaxPayloadBytes != 0 {
		c.MaxPayloadBytes = other.MaxPayloadBytes
	}
	if other.OutboundQueue != 0 {
		c.OutboundQueue = other.OutboundQueue
	}
	if other.HistoryLimit != 0 {
		c.HistoryLimit = other.HistoryLimit
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.JWTTTL != 0 {
		c.JWTTTL = other.JWTTTL
	}
	if other.MaxConnsPerMinute != 0 {
		c.MaxConnsPerMinute = other.MaxConnsPerMinute
	}
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	switch {
	case c.TCPAddr == "" && c.HTTPAddr == "":
		return errNoListener
	case c.DatabasePath == "":
		return errNoDatabase
	case c.MaxPayloadBytes < 0 || c.OutboundQueue < 0 || c.HistoryLimit < 0 || c.MaxConnsPerMinute < 0:
		return errNegativeLimit
	}
	return nil
}
