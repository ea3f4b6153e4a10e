package storage

import (
	"context"
	"fmt"
	"strings"

	logx "voyagebot/pkg/logx"
)

// Store appends run records.
type Store interface {
	AppendRun(ctx context.Context, r RunRecord) error
	Close() error
}

// Open initializes the configured driver. It returns ErrDisabled for "none".
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "none":
		return nil, ErrDisabled
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown journal driver %q", driver)
	}
}
