package cmd

import (
	"fmt"

	"github.com/jcdickinson/ferrisnav/internal/config"
	"github.com/jcdickinson/ferrisnav/internal/db"
)

func openLedger() (*db.DB, error) {
	database, err := db.New(config.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	return database, nil
}

// ledgerFile opens the ledger per query. DuckDB locks its file for the
// connection's lifetime, and long-running serve/mcp processes must not block
// a concurrent build.
type ledgerFile struct{}

func (ledgerFile) with(fn func(*db.DB) error) error {
	database, err := openLedger()
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(database)
}

func (l ledgerFile) ListBuilds(latestOnly bool) (builds []db.Build, err error) {
	err = l.with(func(d *db.DB) error {
		builds, err = d.ListBuilds(latestOnly)
		return err
	})
	return builds, err
}

func (l ledgerFile) FindItems(query string, limit int) (items []db.Item, err error) {
	err = l.with(func(d *db.DB) error {
		items, err = d.FindItems(query, limit)
		return err
	})
	return items, err
}

func (l ledgerFile) ImplementorsOf(trait string) (impls []db.Implementor, err error) {
	err = l.with(func(d *db.DB) error {
		impls, err = d.ImplementorsOf(trait)
		return err
	})
	return impls, err
}
