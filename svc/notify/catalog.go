package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/courier/pkg/cache"
	"github.com/dmitrymomot/courier/pkg/logger"
	"github.com/dmitrymomot/courier/pkg/validator"
)

// Catalog serves notification types with tenant shadowing and an LRU cache
// in front of the TypeStore.
type Catalog struct {
	store    TypeStore
	channels ChannelSet
	cache    *cache.LRU[typeKey, NotificationType]
	logger   *slog.Logger
}

// CatalogOption configures a Catalog.
type CatalogOption func(*catalogConfig)

type catalogConfig struct {
	size     int
	ttl      time.Duration
	channels ChannelSet
	logger   *slog.Logger
}

// WithCatalogCache sets the cache size and entry TTL. Size 0 disables caching.
func WithCatalogCache(size int, ttl time.Duration) CatalogOption {
	return func(c *catalogConfig) {
		c.size = size
		c.ttl = ttl
	}
}

// WithCatalogChannels validates default channels against set.
func WithCatalogChannels(set ChannelSet) CatalogOption {
	return func(c *catalogConfig) {
		c.channels = set
	}
}

// WithCatalogLogger sets the logger.
func WithCatalogLogger(l *slog.Logger) CatalogOption {
	return func(c *catalogConfig) {
		c.logger = l
	}
}

// NewCatalog creates a catalog backed by store.
func NewCatalog(store TypeStore, opts ...CatalogOption) *Catalog {
	cfg := catalogConfig{size: 512, ttl: 5 * time.Minute, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	c := &Catalog{store: store, channels: cfg.channels, logger: cfg.logger}
	if cfg.size > 0 {
		c.cache = cache.NewLRU[typeKey, NotificationType](cfg.size, cache.WithTTL(cfg.ttl))
	}
	return c
}

// Get resolves id for tenantID, preferring the tenant's own type.
func (c *Catalog) Get(ctx context.Context, tenantID uuid.UUID, id string) (*NotificationType, error) {
	key := typeKey{tenantID, id}
	if c.cache != nil {
		if t, ok := c.cache.Get(key); ok {
			return &t, nil
		}
	}
	t, err := c.store.GetType(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Put(key, *t)
	}
	return t, nil
}

// List returns the types visible to tenantID.
func (c *Catalog) List(ctx context.Context, tenantID uuid.UUID) ([]NotificationType, error) {
	return c.store.ListTypes(ctx, tenantID)
}

// Put validates and stores t.
func (c *Catalog) Put(ctx context.Context, t *NotificationType) error {
	if t.Name == "" {
		t.Name = t.ID
	}
	if t.TemplateID == "" {
		t.TemplateID = t.ID
	}

	var channelIDs []string
	if c.channels != nil {
		channelIDs = c.channels.IDs()
	}
	if err := validator.Apply(
		validator.ValidIdentifier("id", t.ID),
		validator.MaxLenString("id", t.ID, 128),
		validator.When(c.channels != nil, validator.EachInList("default_channels", t.DefaultChannels, channelIDs)),
	); err != nil {
		return errors.Join(ErrValidation, err)
	}

	if err := c.store.UpsertType(ctx, t); err != nil {
		return err
	}
	if c.cache != nil {
		// A global change is visible through every tenant key.
		c.cache.Purge()
	}
	return nil
}

// CatalogFile is the YAML layout used to seed the catalog.
type CatalogFile struct {
	Types []NotificationType `yaml:"types"`
}

// ParseCatalog reads a CatalogFile from r.
func ParseCatalog(r io.Reader) ([]NotificationType, error) {
	var f CatalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return f.Types, nil
}

// SeedFromFile loads path and upserts every type in it.
func (c *Catalog) SeedFromFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	types, err := ParseCatalog(f)
	if err != nil {
		return 0, err
	}
	return c.Seed(ctx, types)
}

// Seed upserts types and makes sure the digest type exists.
func (c *Catalog) Seed(ctx context.Context, types []NotificationType) (int, error) {
	hasDigest := false
	for i := range types {
		if err := c.Put(ctx, &types[i]); err != nil {
			return i, fmt.Errorf("seed type %q: %w", types[i].ID, err)
		}
		hasDigest = hasDigest || (types[i].ID == DigestTypeID && types[i].IsGlobal())
	}
	if !hasDigest {
		if _, err := c.store.GetType(ctx, uuid.Nil, DigestTypeID); errors.Is(err, ErrTypeNotFound) {
			digest := NotificationType{ID: DigestTypeID, Name: "Digest", TemplateID: DigestTypeID}
			if err := c.Put(ctx, &digest); err != nil {
				return len(types), err
			}
		}
	}
	c.logger.LogAttrs(ctx, slog.LevelInfo, "notification catalog seeded",
		logger.Component("catalog"), slog.Int("types", len(types)))
	return len(types), nil
}
