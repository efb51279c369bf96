// Command transitctl runs roster and ledger chores against the configured backend.
package main

import (
	"context"
	"fmt"
	"os"

	"transit/internal/config"
	"transit/internal/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON})

	cmd := newRootCommand(cfg)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
