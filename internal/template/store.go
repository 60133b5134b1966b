package template

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/supplierportal/notify-api/internal/model"
	"github.com/supplierportal/notify-api/internal/repository"
	"github.com/supplierportal/notify-api/pkg/logger"
	"github.com/supplierportal/notify-api/pkg/metrics"
)

// ErrTemplateNotFound is returned by Resolve when nothing matches and
// auto-creation is disabled.
var ErrTemplateNotFound = fmt.Errorf("template %w", model.ErrNotFound)

type Config struct {
	// AutoCreate persists a blank template when a lookup finds nothing.
	AutoCreate bool
	CacheTTL   time.Duration
}

// Store resolves templates for sending and manages them for admins.
type Store struct {
	repo    repository.TemplateRepository
	cache   *cache.Cache
	config  Config
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewStore(repo repository.TemplateRepository, config Config, log *logger.Logger, m *metrics.Metrics) *Store {
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	return &Store{
		repo:    repo,
		cache:   cache.New(config.CacheTTL, 2*config.CacheTTL),
		config:  config,
		logger:  log,
		metrics: m,
	}
}

func cacheKey(typ model.NotificationType, name string) string {
	return string(typ) + "|" + name
}

// Resolve finds the template for a send: active by name, then active by
// type, then any template matching either. When none exists it creates a
// blank active template if AutoCreate is set.
func (s *Store) Resolve(ctx context.Context, typ model.NotificationType, name string) (*model.NotificationTemplate, error) {
	key := cacheKey(typ, name)
	if v, ok := s.cache.Get(key); ok {
		return v.(*model.NotificationTemplate), nil
	}

	tmpl, err := s.lookup(ctx, typ, name)
	if errors.Is(err, model.ErrNotFound) {
		tmpl, err = s.autoCreate(ctx, typ, name)
	}
	if err != nil {
		return nil, err
	}

	s.cache.SetDefault(key, tmpl)
	return tmpl, nil
}

func (s *Store) lookup(ctx context.Context, typ model.NotificationType, name string) (*model.NotificationTemplate, error) {
	if name != "" {
		tmpl, err := s.repo.GetActiveByName(ctx, name)
		if err == nil {
			return tmpl, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
	}
	if typ != "" {
		tmpl, err := s.repo.GetActiveByType(ctx, typ)
		if err == nil {
			return tmpl, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
	}
	return s.repo.GetByNameOrType(ctx, name, typ)
}

func (s *Store) autoCreate(ctx context.Context, typ model.NotificationType, name string) (*model.NotificationTemplate, error) {
	if !s.config.AutoCreate {
		s.logger.WithContext(ctx).Error(ErrTemplateNotFound, "no template configured",
			"template_name", name, "notification_type", string(typ))
		return nil, ErrTemplateNotFound
	}

	if name == "" {
		name = strings.ToLower(string(typ))
	}
	tmpl := &model.NotificationTemplate{
		Name:             name,
		NotificationType: typ,
		IsActive:         true,
		AutoCreated:      true,
	}
	if err := s.repo.Create(ctx, tmpl); err != nil {
		// a concurrent send may have created it first
		if existing, lookupErr := s.repo.GetByNameOrType(ctx, name, typ); lookupErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to auto-create template %q: %w", name, err)
	}

	s.metrics.TemplatesAutoCreated.Inc()
	s.logger.WithContext(ctx).Warn("auto-created blank template; notifications using it render empty content",
		"template_name", name, "notification_type", string(typ), "template_id", tmpl.ID.String())
	return tmpl, nil
}

// Invalidate drops every cached resolution. Admin writes call it.
func (s *Store) Invalidate() {
	s.cache.Flush()
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*model.NotificationTemplate, error) {
	return s.repo.Get(ctx, id)
}

func (s *Store) List(ctx context.Context, activeOnly bool) ([]*model.NotificationTemplate, error) {
	return s.repo.List(ctx, activeOnly)
}

func (s *Store) Create(ctx context.Context, tmpl *model.NotificationTemplate) error {
	if err := s.repo.Create(ctx, tmpl); err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

// Update replaces the editable fields. Editing an auto-created template
// clears its auto_created mark.
func (s *Store) Update(ctx context.Context, tmpl *model.NotificationTemplate) error {
	if !tmpl.IsBlank() {
		tmpl.AutoCreated = false
	}
	if err := s.repo.Update(ctx, tmpl); err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

// SetActive toggles the active flag; templates are never hard-deleted.
func (s *Store) SetActive(ctx context.Context, id uuid.UUID, active bool) (*model.NotificationTemplate, error) {
	tmpl, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tmpl.IsActive = active
	if err := s.repo.Update(ctx, tmpl); err != nil {
		return nil, err
	}
	s.Invalidate()
	return tmpl, nil
}

// SeedDefaults creates the built-in template for every notification type
// that has none yet. It returns how many were created.
func (s *Store) SeedDefaults(ctx context.Context) (int, error) {
	created := 0
	for _, def := range Defaults() {
		_, err := s.repo.GetByNameOrType(ctx, def.Name, def.NotificationType)
		if err == nil {
			continue
		}
		if !errors.Is(err, model.ErrNotFound) {
			return created, err
		}
		tmpl := def
		if err := s.repo.Create(ctx, &tmpl); err != nil {
			return created, fmt.Errorf("failed to seed template %q: %w", def.Name, err)
		}
		created++
	}
	if created > 0 {
		s.Invalidate()
	}
	return created, nil
}
