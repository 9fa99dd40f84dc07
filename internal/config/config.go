package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	View    ViewConfig    `mapstructure:"view"`
	Capture CaptureConfig `mapstructure:"capture"`
	Log     LogConfig     `mapstructure:"log"`
	UI      UIConfig      `mapstructure:"ui"`
	Keys    KeyConfig     `mapstructure:"keys"`
}

type ServerConfig struct {
	URL              string        `mapstructure:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	Origin           string        `mapstructure:"origin"`
}

type ViewConfig struct {
	PageSize       int           `mapstructure:"page_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	DefaultTopic   string        `mapstructure:"default_topic"`
}

// CaptureConfig enables the on-disk capture. Empty paths disable it.
type CaptureConfig struct {
	Path        string `mapstructure:"path"`
	SearchIndex string `mapstructure:"search_index"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type UIConfig struct {
	Colors UIColors     `mapstructure:"colors"`
	Reader ReaderConfig `mapstructure:"reader"`
}

type UIColors struct {
	Primary    string `mapstructure:"primary"`
	Secondary  string `mapstructure:"secondary"`
	Accent     string `mapstructure:"accent"`
	Background string `mapstructure:"background"`
	Surface    string `mapstructure:"surface"`
	Text       string `mapstructure:"text"`
	Muted      string `mapstructure:"muted"`
	Error      string `mapstructure:"error"`
	Success    string `mapstructure:"success"`
}

type ReaderConfig struct {
	WordWrapMaxWidth int    `mapstructure:"word_wrap_max_width"`
	WordWrapMinWidth int    `mapstructure:"word_wrap_min_width"`
	Style            string `mapstructure:"style"`
}

type KeyConfig struct {
	Modifier string      `mapstructure:"modifier"`
	Bindings KeyBindings `mapstructure:"bindings"`
}

// KeyBindings holds the action keys. Request, Topics, Filters and Search are
// pressed together with the modifier.
type KeyBindings struct {
	Quit         string `mapstructure:"quit"`
	Search       string `mapstructure:"search"`
	Request      string `mapstructure:"request"`
	Topics       string `mapstructure:"topics"`
	Filters      string `mapstructure:"filters"`
	AddFilter    string `mapstructure:"add_filter"`
	RemoveFilter string `mapstructure:"remove_filter"`
	PrevPage     string `mapstructure:"prev_page"`
	NextPage     string `mapstructure:"next_page"`
	GrowPage     string `mapstructure:"grow_page"`
	ShrinkPage   string `mapstructure:"shrink_page"`
	Back         string `mapstructure:"back"`
	Help         string `mapstructure:"help"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Server: ServerConfig{
			URL:              "ws://127.0.0.1:9002/",
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     5 * time.Second,
		},
		View: ViewConfig{
			PageSize:       20,
			RequestTimeout: 2 * time.Second,
			DefaultTopic:   "all",
		},
		Log: LogConfig{
			Level: "off",
			File:  filepath.Join(homeDir, ".streamview", "streamview.log"),
		},
		UI: UIConfig{
			Colors: UIColors{
				Primary:    "#FF6B6B",
				Secondary:  "#4ECDC4",
				Accent:     "#95E1D3",
				Background: "#1A1A2E",
				Surface:    "#16213E",
				Text:       "#EAEAEA",
				Muted:      "#94A3B8",
				Error:      "#F87171",
				Success:    "#4ADE80",
			},
			Reader: ReaderConfig{
				WordWrapMaxWidth: 120,
				WordWrapMinWidth: 40,
				Style:            "dark",
			},
		},
		Keys: KeyConfig{
			Modifier: "ctrl",
			Bindings: KeyBindings{
				Quit:         "q",
				Search:       "s",
				Request:      "r",
				Topics:       "t",
				Filters:      "f",
				AddFilter:    "a",
				RemoveFilter: "d",
				PrevPage:     "[",
				NextPage:     "]",
				GrowPage:     "+",
				ShrinkPage:   "-",
				Back:         "esc",
				Help:         "?",
			},
		},
	}
}

// DefaultPath is ~/.config/streamview/config.toml.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "streamview", "config.toml")
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v, defaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Dir(DefaultPath()))
		v.AddConfigPath(".")
	}

	// STREAMVIEW_SERVER_URL overrides server.url and so on.
	v.SetEnvPrefix("STREAMVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "reading config")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}

	expandPaths(&config)

	return &config, nil
}

// setDefaults registers every leaf key. A file that sets one key of a section
// keeps the defaults of the rest.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.url", cfg.Server.URL)
	v.SetDefault("server.handshake_timeout", cfg.Server.HandshakeTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.origin", cfg.Server.Origin)

	v.SetDefault("view.page_size", cfg.View.PageSize)
	v.SetDefault("view.request_timeout", cfg.View.RequestTimeout)
	v.SetDefault("view.default_topic", cfg.View.DefaultTopic)

	v.SetDefault("capture.path", cfg.Capture.Path)
	v.SetDefault("capture.search_index", cfg.Capture.SearchIndex)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)

	doc := toDocument(cfg)
	for name, color := range doc.UI.Colors {
		v.SetDefault("ui.colors."+name, color)
	}
	for name, val := range doc.UI.Reader {
		v.SetDefault("ui.reader."+name, val)
	}
	v.SetDefault("keys.modifier", cfg.Keys.Modifier)
	for name, key := range doc.Keys["bindings"].(map[string]string) {
		v.SetDefault("keys.bindings."+name, key)
	}
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.Capture.Path = expandPath(cfg.Capture.Path)
	cfg.Capture.SearchIndex = expandPath(cfg.Capture.SearchIndex)
	cfg.Log.File = expandPath(cfg.Log.File)
}

func Save(config *Config, path string) error {
	v := viper.New()

	// Durations as strings for TOML readability
	doc := toDocument(config)
	v.Set("server", doc.Server)
	v.Set("view", doc.View)
	v.Set("capture", doc.Capture)
	v.Set("log", doc.Log)
	v.Set("ui", doc.UI)
	v.Set("keys", doc.Keys)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating config directory")
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}
