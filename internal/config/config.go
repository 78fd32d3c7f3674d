package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// envBindings maps config keys to environment variables that override them.
var envBindings = map[string]string{
	"notify.telegram.bot_token": "QUORUM_TELEGRAM_BOT_TOKEN",
	"notify.telegram.chat_id":   "QUORUM_TELEGRAM_CHAT_ID",
	"app.log_level":             "QUORUM_LOG_LEVEL",
	"market.proxy_url":          "QUORUM_MARKET_PROXY_URL",
}

// Load reads path and everything it includes, applies defaults for keys the files did not
// set, and validates the result. Included files are merged first so the including file wins.
func Load(path string) (*Config, error) {
	files, err := newIncludeResolver().resolve(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range files {
		layer, err := readLayer(file)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
		if err := v.MergeConfigMap(layer.AllSettings()); err != nil {
			return nil, fmt.Errorf("merge config %s: %w", file, err)
		}
	}

	// Explicit keys come from the files only; env bindings would otherwise mark every
	// bound key as set and suppress its default.
	explicit := make(keySet)
	for _, key := range v.AllKeys() {
		if key != "include" {
			explicit.mark(key)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults(explicit)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readLayer(path string) (*viper.Viper, error) {
	layer := viper.New()
	layer.SetConfigFile(path)
	if err := layer.ReadInConfig(); err != nil {
		return nil, err
	}
	return layer, nil
}

// includeResolver flattens the include graph depth-first. Each file appears once, after
// the files it includes.
type includeResolver struct {
	done    map[string]bool
	walking map[string]bool
	order   []string
}

func newIncludeResolver() *includeResolver {
	return &includeResolver{done: map[string]bool{}, walking: map[string]bool{}}
}

func (r *includeResolver) resolve(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := r.visit(abs); err != nil {
		return nil, err
	}
	return r.order, nil
}

func (r *includeResolver) visit(path string) error {
	path = filepath.Clean(path)
	switch {
	case r.walking[path]:
		return fmt.Errorf("include cycle at %s", path)
	case r.done[path]:
		return nil
	}
	r.walking[path] = true
	defer delete(r.walking, path)

	layer, err := readLayer(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	includes, err := includeList(layer.Get("include"))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := r.visit(inc); err != nil {
			return err
		}
	}
	r.done[path] = true
	r.order = append(r.order, path)
	return nil
}

// includeList accepts a single path or a list of paths.
func includeList(raw any) ([]string, error) {
	var items []any
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case string:
		items = []any{val}
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	case []any:
		items = val
	default:
		return nil, fmt.Errorf("include must be a path or a list of paths, got %T", raw)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("include entries must be strings, got %T", item)
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
