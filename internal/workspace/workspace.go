// Package workspace wires configuration, storage and the import services for
// one books directory.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/shopspring/decimal"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/config"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/importer"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/ledger"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/linker"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/rates"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/reconcile"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/store"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/store/filestore"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/store/memstore"
	"github.com/Efebektas23/QUICKYEL-sub000/internal/store/pgstore"
)

// Workspace holds the services for a books directory.
type Workspace struct {
	Root   string
	Config *config.Config

	Store    store.Store
	Ledger   *ledger.Service
	Resolver *rates.Resolver
	Linker   *linker.Linker
	Imports  *reconcile.Service
	Parsers  *importer.Registry
}

// Open loads <root>/quickyel.yaml and opens the configured store.
func Open(ctx context.Context, root string) (*Workspace, error) {
	cfg, err := config.Load(filepath.Join(root, config.FileName))
	if err != nil {
		return nil, err
	}
	return New(ctx, root, cfg, nil)
}

// New builds a Workspace from cfg. A nil feed uses the configured rates
// service.
func New(ctx context.Context, root string, cfg *config.Config, feed rates.Feed) (*Workspace, error) {
	st, err := openStore(ctx, root, cfg.Storage)
	if err != nil {
		return nil, err
	}

	fallback, err := decimal.NewFromString(cfg.Reporting.FallbackRate)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("reporting.fallback_rate %q: %w", cfg.Reporting.FallbackRate, err)
	}
	tolerance, err := decimal.NewFromString(cfg.Linker.AmountTolerance)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("linker.amount_tolerance %q: %w", cfg.Linker.AmountTolerance, err)
	}

	if feed == nil {
		feed = rates.NewValetFeed(cfg.Rates.BaseURL, cfg.Rates.Timeout)
	}
	resolver := rates.NewResolver(feed, rates.Options{
		ReportingCurrency: cfg.Reporting.Currency,
		WindowDays:        cfg.Reporting.WindowDays,
		Fallback:          fallback,
	})

	led := ledger.NewService(st, cfg.Ledger.ChunkSize)
	lnk := linker.New(st, linker.Options{
		DateToleranceDays: cfg.Linker.DateToleranceDays,
		AmountTolerance:   tolerance,
		VendorMatch:       cfg.Linker.VendorMatch,
	})
	rcfg := reconcile.Config{Workers: cfg.Import.Workers}
	if cfg.Linker.Enabled {
		rcfg.Linker = lnk
	}

	parsers := importer.NewRegistry()
	parsers.Register(&importer.ChaseParser{Currency: cfg.Import.BankCurrency}, ".csv")
	parsers.Register(&importer.SheetParser{Currency: cfg.Import.BankCurrency}, ".xlsx")
	parsers.Register(&importer.JSONParser{}, ".json")

	return &Workspace{
		Root:     root,
		Config:   cfg,
		Store:    st,
		Ledger:   led,
		Resolver: resolver,
		Linker:   lnk,
		Imports:  reconcile.NewService(st, led, rates.NewNormalizer(resolver), rcfg),
		Parsers:  parsers,
	}, nil
}

func openStore(ctx context.Context, root string, sc config.StorageConfig) (store.Store, error) {
	switch sc.Driver {
	case "", config.DriverFile:
		return filestore.Open(root)
	case config.DriverPostgres:
		if sc.DSN == "" {
			return nil, errors.New("storage.dsn is required for the postgres driver")
		}
		return pgstore.Open(ctx, sc.DSN)
	case config.DriverMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
}

// Close releases the store.
func (w *Workspace) Close() error {
	return w.Store.Close()
}
