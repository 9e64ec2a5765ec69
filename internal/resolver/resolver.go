package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lanread/internal/models"
	"lanread/internal/repository"
	"lanread/internal/workspace"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// BookIDProperty is the card property carrying the stable per-book
// idempotency key. Lookups filter on it so a reinstall finds the container
// created by a previous sync instead of creating a duplicate.
const BookIDProperty = "Book ID"

var (
	ErrMissingDatabaseID     = errors.New("resolver: sync is not configured, no container database id")
	ErrInvalidBookID         = errors.New("resolver: book id is empty")
	ErrInvalidCreateResponse = errors.New("resolver: create response is missing an id")
)

// Store is the durable side of the resolver: the page_mappings table plus
// the sync configuration that supplies the container database id.
type Store interface {
	GetPageMapping(ctx context.Context, bookID string) (*models.PageMapping, error)
	SavePageMapping(ctx context.Context, bookID, pageID string) error
	GetSyncConfig(ctx context.Context) (*models.SyncConfig, error)
}

// API is the slice of the workspace client the resolver needs.
type API interface {
	QueryContainer(ctx context.Context, containerID string, filter map[string]interface{}) ([]workspace.Object, error)
	CreateCard(ctx context.Context, containerID string, properties map[string]interface{}, children []workspace.Block) (*workspace.Object, error)
}

// Resolver finds or creates, exactly once per book, the remote page that
// holds the book's synced annotations. Concurrent calls for the same book
// coalesce into a single in-flight resolution.
type Resolver struct {
	store  Store
	api    API
	cache  repository.MappingCache
	group  singleflight.Group
	logger zerolog.Logger
}

func New(store Store, api API, cache repository.MappingCache, logger *zerolog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		api:    api,
		cache:  cache,
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve returns the remote page id for the book described by the payload.
func (r *Resolver) Resolve(ctx context.Context, payload *models.TaskPayload) (string, error) {
	bookID := strings.TrimSpace(payload.BookID)
	if bookID == "" {
		return "", ErrInvalidBookID
	}

	if r.cache != nil {
		if pageID, err := r.cache.Get(ctx, bookID); err == nil && pageID != "" {
			return pageID, nil
		}
	}

	// Same-book callers share one flight; different books do not block
	// each other here.
	result, err, _ := r.group.Do(bookID, func() (interface{}, error) {
		return r.resolveSlow(ctx, bookID, payload)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (r *Resolver) resolveSlow(ctx context.Context, bookID string, payload *models.TaskPayload) (string, error) {
	mapping, err := r.store.GetPageMapping(ctx, bookID)
	if err != nil {
		return "", err
	}
	if mapping != nil {
		r.remember(ctx, bookID, mapping.PageID)
		return mapping.PageID, nil
	}

	cfg, err := r.store.GetSyncConfig(ctx)
	if err != nil {
		return "", err
	}
	if cfg == nil || cfg.DatabaseID == "" {
		return "", ErrMissingDatabaseID
	}

	// A previous install may have created the page already; the book id
	// property is the idempotency key.
	existing, err := r.api.QueryContainer(ctx, cfg.DatabaseID, workspace.RichTextEquals(BookIDProperty, bookID))
	if err != nil {
		return "", err
	}
	if len(existing) > 0 && existing[0].ID != "" {
		pageID := existing[0].ID
		if err := r.persist(ctx, bookID, pageID); err != nil {
			return "", err
		}
		r.logger.Debug().Str("book_id", bookID).Str("page_id", pageID).Msg("Reused existing page")
		return pageID, nil
	}

	created, err := r.api.CreateCard(ctx, cfg.DatabaseID, r.cardProperties(payload, bookID), nil)
	if err != nil {
		return "", err
	}
	if created == nil || created.ID == "" {
		return "", ErrInvalidCreateResponse
	}

	if err := r.persist(ctx, bookID, created.ID); err != nil {
		return "", err
	}
	r.logger.Info().Str("book_id", bookID).Str("page_id", created.ID).Msg("Created page for book")
	return created.ID, nil
}

func (r *Resolver) cardProperties(payload *models.TaskPayload, bookID string) map[string]interface{} {
	title := strings.TrimSpace(payload.BookTitle)
	if title == "" {
		title = bookID
	}
	properties := map[string]interface{}{
		"Name":         workspace.TitleProperty(title),
		BookIDProperty: workspace.RichTextProperty(bookID),
	}
	if author := strings.TrimSpace(payload.Author); author != "" {
		properties["Author"] = workspace.RichTextProperty(author)
	}
	return properties
}

func (r *Resolver) persist(ctx context.Context, bookID, pageID string) error {
	if err := r.store.SavePageMapping(ctx, bookID, pageID); err != nil {
		return fmt.Errorf("persist page mapping: %w", err)
	}
	r.remember(ctx, bookID, pageID)
	return nil
}

func (r *Resolver) remember(ctx context.Context, bookID, pageID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, bookID, pageID); err != nil {
		r.logger.Warn().Err(err).Str("book_id", bookID).Msg("Mapping cache write failed")
	}
}
