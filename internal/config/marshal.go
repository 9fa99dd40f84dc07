package config

import (
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrUnknownFormat = errors.New("unknown config format")

// document mirrors Config as it appears on disk, with durations as text.
type document struct {
	Server  serverDocument  `toml:"server" yaml:"server" mapstructure:"server"`
	View    viewDocument    `toml:"view" yaml:"view" mapstructure:"view"`
	Capture captureDocument `toml:"capture" yaml:"capture" mapstructure:"capture"`
	Log     logDocument     `toml:"log" yaml:"log" mapstructure:"log"`
	UI      uiDocument      `toml:"ui" yaml:"ui" mapstructure:"ui"`
	Keys    map[string]any  `toml:"keys" yaml:"keys" mapstructure:"keys"`
}

type serverDocument struct {
	URL              string `toml:"url" yaml:"url" mapstructure:"url"`
	HandshakeTimeout string `toml:"handshake_timeout" yaml:"handshake_timeout" mapstructure:"handshake_timeout"`
	WriteTimeout     string `toml:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	Origin           string `toml:"origin" yaml:"origin" mapstructure:"origin"`
}

type viewDocument struct {
	PageSize       int    `toml:"page_size" yaml:"page_size" mapstructure:"page_size"`
	RequestTimeout string `toml:"request_timeout" yaml:"request_timeout" mapstructure:"request_timeout"`
	DefaultTopic   string `toml:"default_topic" yaml:"default_topic" mapstructure:"default_topic"`
}

type captureDocument struct {
	Path        string `toml:"path" yaml:"path" mapstructure:"path"`
	SearchIndex string `toml:"search_index" yaml:"search_index" mapstructure:"search_index"`
}

type logDocument struct {
	Level string `toml:"level" yaml:"level" mapstructure:"level"`
	File  string `toml:"file" yaml:"file" mapstructure:"file"`
}

type uiDocument struct {
	Colors map[string]string `toml:"colors" yaml:"colors" mapstructure:"colors"`
	Reader map[string]any    `toml:"reader" yaml:"reader" mapstructure:"reader"`
}

func toDocument(cfg *Config) document {
	c := cfg.UI.Colors
	b := cfg.Keys.Bindings
	return document{
		Server: serverDocument{
			URL:              cfg.Server.URL,
			HandshakeTimeout: cfg.Server.HandshakeTimeout.String(),
			WriteTimeout:     cfg.Server.WriteTimeout.String(),
			Origin:           cfg.Server.Origin,
		},
		View: viewDocument{
			PageSize:       cfg.View.PageSize,
			RequestTimeout: cfg.View.RequestTimeout.String(),
			DefaultTopic:   cfg.View.DefaultTopic,
		},
		Capture: captureDocument{Path: cfg.Capture.Path, SearchIndex: cfg.Capture.SearchIndex},
		Log:     logDocument{Level: cfg.Log.Level, File: cfg.Log.File},
		UI: uiDocument{
			Colors: map[string]string{
				"primary":    c.Primary,
				"secondary":  c.Secondary,
				"accent":     c.Accent,
				"background": c.Background,
				"surface":    c.Surface,
				"text":       c.Text,
				"muted":      c.Muted,
				"error":      c.Error,
				"success":    c.Success,
			},
			Reader: map[string]any{
				"word_wrap_max_width": cfg.UI.Reader.WordWrapMaxWidth,
				"word_wrap_min_width": cfg.UI.Reader.WordWrapMinWidth,
				"style":               cfg.UI.Reader.Style,
			},
		},
		Keys: map[string]any{
			"modifier": cfg.Keys.Modifier,
			"bindings": map[string]string{
				"quit":          b.Quit,
				"search":        b.Search,
				"request":       b.Request,
				"topics":        b.Topics,
				"filters":       b.Filters,
				"add_filter":    b.AddFilter,
				"remove_filter": b.RemoveFilter,
				"prev_page":     b.PrevPage,
				"next_page":     b.NextPage,
				"grow_page":     b.GrowPage,
				"shrink_page":   b.ShrinkPage,
				"back":          b.Back,
				"help":          b.Help,
			},
		},
	}
}

// Marshal renders cfg in the given format, "toml" or "yaml".
func Marshal(cfg *Config, format string) ([]byte, error) {
	doc := toDocument(cfg)
	switch format {
	case "", "toml":
		return toml.Marshal(doc)
	case "yaml", "yml":
		return yaml.Marshal(doc)
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "%q", format)
	}
}
