package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v3"
)

// Store persists the Stats document. Load and Save operate on the whole
// document; there are no partial-field updates.
type Store interface {
	Load(ctx context.Context) (*Document, error)
	Save(ctx context.Context, doc *Document) error
	Close() error
}

// DecimalsFetcher resolves mint decimal precision from the chain.
type DecimalsFetcher func(ctx context.Context) (uint8, error)

type BadgerStoreConfig struct {
	Logger *slog.Logger
	Dir    string

	// Defaults seed the document on first boot or unreadable state.
	Mint    string
	Wallet  string
	Network string
}

func (cfg *BadgerStoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Dir == "" {
		return errors.New("store dir is required")
	}
	return nil
}

// BadgerStore keeps the whole document as one JSON value under a single key.
type BadgerStore struct {
	log *slog.Logger
	cfg BadgerStoreConfig
	db  *badger.DB
	key []byte
}

func NewBadgerStore(cfg BadgerStoreConfig) (*BadgerStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(cfg.Dir)
	// Badger's own logging is noisy; errors still surface from operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	return &BadgerStore{
		log: cfg.Logger,
		cfg: cfg,
		db:  db,
		key: []byte("flywheel_stats"),
	}, nil
}

func (s *BadgerStore) defaults() *Document {
	return Defaults(s.cfg.Mint, s.cfg.Wallet, s.cfg.Network)
}

// Load returns the persisted document, falling back to defaults on missing or
// corrupt state. Status endpoints must never hard-fail because of storage.
func (s *BadgerStore) Load(ctx context.Context) (*Document, error) {
	var doc Document
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return s.defaults(), nil
	}
	if err != nil {
		s.log.Warn("stats: state unreadable, using defaults", "error", err)
		return s.defaults(), nil
	}
	if doc.History == nil {
		doc.History = []HistoryEntry{}
	}
	return &doc, nil
}

// Save replaces the persisted document. Unlike Load, write failures propagate:
// silently dropping totals is worse than failing the cycle.
func (s *BadgerStore) Save(ctx context.Context, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, data)
	})
	if err != nil {
		return fmt.Errorf("persist stats: %w", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// ResolveDecimals returns the mint's decimal precision from the document,
// discovering and caching it there when unset. A failed chain lookup falls
// back to DefaultDecimals; once set the value is never overwritten. The
// caller persists the document.
func ResolveDecimals(ctx context.Context, log *slog.Logger, doc *Document, fetch DecimalsFetcher) uint8 {
	if doc.Config.Decimals != nil {
		return *doc.Config.Decimals
	}

	decimals, err := fetch(ctx)
	if err != nil {
		log.Warn("stats: decimals lookup failed, defaulting", "default", DefaultDecimals, "error", err)
		decimals = DefaultDecimals
	} else {
		log.Info("stats: discovered mint decimals", "decimals", decimals)
	}

	doc.Config.Decimals = &decimals
	return decimals
}

// EnsureDecimals is ResolveDecimals against the persisted document: repeated
// calls after discovery return the cached value without touching the chain.
func EnsureDecimals(ctx context.Context, log *slog.Logger, store Store, fetch DecimalsFetcher) (uint8, error) {
	doc, err := store.Load(ctx)
	if err != nil {
		return 0, err
	}
	if doc.Config.Decimals != nil {
		return *doc.Config.Decimals, nil
	}

	decimals := ResolveDecimals(ctx, log, doc, fetch)
	if err := store.Save(ctx, doc); err != nil {
		return 0, err
	}
	return decimals, nil
}
