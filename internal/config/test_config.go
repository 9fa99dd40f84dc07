package config

import "time"

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	cfg := defaultConfig()
	cfg.Server = ServerConfig{
		URL:              "ws://127.0.0.1:0/",
		HandshakeTimeout: time.Second,
		WriteTimeout:     time.Second,
	}
	cfg.View.RequestTimeout = 100 * time.Millisecond
	cfg.Capture = CaptureConfig{}
	cfg.Log = LogConfig{Level: "off"}
	return cfg
}
