package usecase

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/castline/internal/domain"
)

var browseTracer = otel.Tracer("browse")

// Filter narrows a listing read. Zero values match everything.
type Filter struct {
	Tier            domain.Tier
	Kind            domain.Kind
	Category        string
	HighlightedOnly bool
}

func (f Filter) match(p domain.Profile, now time.Time) bool {
	if f.Tier != domain.TierUnknown && p.MembershipTier != f.Tier {
		return false
	}
	if f.Kind != domain.KindUnknown {
		kind := domain.KindTalent
		if p.IsResource() {
			kind = domain.KindResource
		}
		if kind != f.Kind {
			return false
		}
	}
	if f.Category != "" && !slices.ContainsFunc(p.Categories, func(c string) bool {
		return strings.EqualFold(c, f.Category)
	}) {
		return false
	}
	if f.HighlightedOnly && !p.HighlightActive(now) {
		return false
	}
	return true
}

type BrowseUsecase struct {
	cache  LocalCache
	clock  Clock
	logger zerolog.Logger
}

func NewBrowseUsecase(cache LocalCache, clock Clock, logger zerolog.Logger) *BrowseUsecase {
	return &BrowseUsecase{
		cache:  cache,
		clock:  clock,
		logger: logger.With().Str("component", "browse").Logger(),
	}
}

// List returns the cached aggregate narrowed by f. Pro profiles with a
// running highlight come first; the aggregate order is kept otherwise.
func (uc *BrowseUsecase) List(ctx context.Context, f Filter) ([]domain.Profile, error) {
	ctx, span := browseTracer.Start(ctx, "Browse.Usecase.List")
	defer span.End()

	profiles, err := uc.read(ctx, domain.KeyAllProfiles)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := uc.clock.Now()
	highlighted := []domain.Profile{}
	rest := []domain.Profile{}
	for _, p := range profiles {
		if !p.Visible || !f.match(p, now) {
			continue
		}
		if p.HighlightActive(now) {
			highlighted = append(highlighted, p)
		} else {
			rest = append(rest, p)
		}
	}

	result := append(highlighted, rest...)
	span.SetAttributes(attribute.Int("count", len(result)))
	return result, nil
}

// Elite returns the cached elite subset.
func (uc *BrowseUsecase) Elite(ctx context.Context) ([]domain.Profile, error) {
	ctx, span := browseTracer.Start(ctx, "Browse.Usecase.Elite")
	defer span.End()

	profiles, err := uc.read(ctx, domain.KeyAllProfilesElite)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out := []domain.Profile{}
	for _, p := range profiles {
		if p.Visible {
			out = append(out, p)
		}
	}
	return out, nil
}

func (uc *BrowseUsecase) read(ctx context.Context, key string) ([]domain.Profile, error) {
	profiles, err := loadProfiles(ctx, uc.cache, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return []domain.Profile{}, nil
		}
		uc.logger.Warn().Err(err).Str("key", key).Msg("cached listing unreadable")
		return nil, err
	}
	return profiles, nil
}
