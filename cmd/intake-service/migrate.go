package main

import (
	"context"
	"database/sql"

	"leadintake/internal/logger"
	"leadintake/migrations"
)

type migrationTarget struct {
	db     *sql.DB
	logger logger.Logger
}

func (m *migrationTarget) report() error {
	version, dirty, err := migrations.Version(m.db)
	if err != nil {
		return err
	}
	m.logger.InfowCtx(context.Background(), "Schema version", "version", version, "dirty", dirty)
	return nil
}
