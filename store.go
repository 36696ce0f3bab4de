/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"

	"github.com/Seednode/topdrop/internal/snapshot"
)

func openStore(cfg *Config) (snapshot.Store, error) {
	logger := cfg.getLogger().WithPrefix("store")

	switch cfg.store {
	case storeBadger:
		s, err := snapshot.OpenBadgerStore(cfg.dataDir, logger)
		if err != nil {
			return nil, fmt.Errorf("opening badger store: %w", err)
		}

		return s, nil
	case storeSQLite:
		s, err := snapshot.OpenSQLiteStore(cfg.dataDir, logger)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}

		return s, nil
	default:
		return snapshot.NewMemoryStore(), nil
	}
}
