package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"quorum/internal/logger"
)

// Watch reloads path whenever it changes on disk and passes every valid result to onChange.
// Invalid edits are logged and ignored.
func Watch(path string, onChange func(*Config)) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(path)
		if err != nil {
			logger.Warnf("config: reload of %s rejected: %v", e.Name, err)
			return
		}
		logger.Infof("config: reloaded %s", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// ApplyRuntime pushes the settings that can change without a restart.
func ApplyRuntime(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.App.LogLevel != logger.Level() {
		logger.SetLevel(cfg.App.LogLevel)
	}
}
