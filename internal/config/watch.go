package config

import (
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch loads the configuration and re-decodes it whenever the config file changes
// on disk. onChange receives each successfully validated reload; invalid edits are
// logged and ignored so the running process keeps its last good configuration.
//
// Without a config file on disk there is nothing to watch and only the initial
// configuration is returned.
func Watch(configPath string, onChange func(*Config)) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	if v.ConfigFileUsed() == "" {
		return cfg, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(v)
		if err != nil {
			slog.Warn("ignoring invalid configuration change", "file", e.Name, "error", err)
			return
		}
		slog.Info("configuration reloaded", "file", e.Name)
		if onChange != nil {
			onChange(next)
		}
	})
	v.WatchConfig()

	return cfg, nil
}

// ReloadableChanges reports which hot-reloadable settings differ between two configs.
// Everything else requires a restart.
func ReloadableChanges(prev, next *Config) []string {
	var changed []string
	if prev.Logging.Level != next.Logging.Level {
		changed = append(changed, fmt.Sprintf("logging.level %s -> %s", prev.Logging.Level, next.Logging.Level))
	}
	if prev.Directory.PerPage != next.Directory.PerPage {
		changed = append(changed, fmt.Sprintf("directory.per_page %d -> %d", prev.Directory.PerPage, next.Directory.PerPage))
	}
	return changed
}
