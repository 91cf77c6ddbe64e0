package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"servicetask/internal/config"
	"servicetask/internal/storage"
	"servicetask/internal/work"
	logx "servicetask/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// OpenStore opens the audit trail named by cfg. It returns storage.ErrDisabled
// when the config has no storage section.
func OpenStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, storage.ErrDisabled
	}
	return storage.Open(sc, log)
}

// Validate checks what config.Validate cannot: worker kinds and params, and
// the storage section. It is installed as the config manager validator so a
// bad hot reload is rejected before commit.
func Validate(_ context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	var errs []error
	for i, t := range cfg.Tasks {
		if !work.Known(t.Kind) {
			errs = append(errs, fmt.Errorf("tasks[%d].kind: unknown %q (known: %s)", i, t.Kind, strings.Join(work.Kinds(), ", ")))
			continue
		}
		if _, err := work.Build(t.Kind, t.Params, logx.Nop()); err != nil {
			errs = append(errs, fmt.Errorf("tasks[%d].params: %w", i, err))
		}
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
