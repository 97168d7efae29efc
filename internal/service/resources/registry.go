// Package resources is the registry for bookable assets (guides, rooms,
// vehicles). It normalizes incoming records before storage so the rest
// of the core only ever sees well-formed resources.
package resources

import (
	"context"
	"strings"
	"unicode"

	"github.com/tourbase/experience-bookings/internal/clock"
	"github.com/tourbase/experience-bookings/internal/domain"
	"github.com/tourbase/experience-bookings/pkg/logger"
)

type ResourceRepo interface {
	Create(ctx context.Context, res *domain.Resource) (*domain.Resource, error)
	GetByID(ctx context.Context, id int64) (*domain.Resource, error)
	Update(ctx context.Context, res *domain.Resource) (*domain.Resource, error)
	List(ctx context.Context, resourceType *domain.ResourceType, limit, offset int) ([]domain.Resource, error)
	Delete(ctx context.Context, id int64) error
}

type Registry struct {
	repo  ResourceRepo
	clock clock.Clock
}

func NewRegistry(repo ResourceRepo, clk clock.Clock) *Registry {
	return &Registry{repo: repo, clock: clk}
}

// NormalizeType maps a raw type string onto a known resource type.
// Matching is case-insensitive but exact otherwise; anything
// unrecognized, including padded values like "room ", falls back to
// guide.
func NormalizeType(raw string) domain.ResourceType {
	if t, ok := domain.ParseResourceType(strings.ToLower(raw)); ok {
		return t
	}
	return domain.ResourceGuide
}

// PrepareForStorage normalizes a resource in place: known type, sanitized
// free text, and a fresh update stamp.
func (r *Registry) PrepareForStorage(res *domain.Resource) {
	res.Type = NormalizeType(string(res.Type))
	res.Name = sanitizeText(res.Name)
	res.Notes = sanitizeText(res.Notes)
	for i := range res.Calendar.Entries {
		res.Calendar.Entries[i].Note = sanitizeText(res.Calendar.Entries[i].Note)
	}
	res.UpdatedAt = r.clock.Now()
}

func (r *Registry) Create(ctx context.Context, res *domain.Resource) (*domain.Resource, error) {
	r.PrepareForStorage(res)

	created, err := r.repo.Create(ctx, res)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Resource created", "resource_id", created.ID, "type", string(created.Type))
	return created, nil
}

func (r *Registry) Get(ctx context.Context, id int64) (*domain.Resource, error) {
	return r.repo.GetByID(ctx, id)
}

func (r *Registry) Update(ctx context.Context, res *domain.Resource) (*domain.Resource, error) {
	if _, err := r.repo.GetByID(ctx, res.ID); err != nil {
		return nil, err
	}
	r.PrepareForStorage(res)
	return r.repo.Update(ctx, res)
}

func (r *Registry) List(ctx context.Context, typeFilter string, limit, offset int) ([]domain.Resource, error) {
	var filter *domain.ResourceType
	if typeFilter != "" {
		t := NormalizeType(typeFilter)
		filter = &t
	}
	return r.repo.List(ctx, filter, limit, offset)
}

func (r *Registry) Delete(ctx context.Context, id int64) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}
	logger.InfoContext(ctx, "Resource deleted", "resource_id", id)
	return nil
}

// sanitizeText trims surrounding whitespace and strips control
// characters that have no business in names or notes.
func sanitizeText(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(cleaned)
}
