package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/totegamma/castline"
	"github.com/totegamma/castline/internal/domain"
)

var profileTracer = otel.Tracer("profile")

// SaveProfileInput is a partial own-profile update for one tier.
type SaveProfileInput struct {
	Tier              domain.Tier
	Fields            castline.Document
	ActivateHighlight bool
	HighlightDays     int
}

// AggregateRebuilder is run after every own-profile save.
type AggregateRebuilder interface {
	RebuildAggregate(ctx context.Context) []domain.Profile
}

// MediaScreener vets media references before they are stored.
type MediaScreener interface {
	Screen(ctx context.Context, p domain.Profile) error
}

type ProfileUsecase struct {
	store     DocumentStore
	cache     LocalCache
	rebuilder AggregateRebuilder
	screener  MediaScreener
	clock     Clock
	logger    zerolog.Logger
}

func NewProfileUsecase(
	store DocumentStore,
	cache LocalCache,
	rebuilder AggregateRebuilder,
	screener MediaScreener,
	clock Clock,
	logger zerolog.Logger,
) *ProfileUsecase {
	return &ProfileUsecase{
		store:     store,
		cache:     cache,
		rebuilder: rebuilder,
		screener:  screener,
		clock:     clock,
		logger:    logger.With().Str("component", "profile").Logger(),
	}
}

// SaveOwnProfile merges input over the session's own record for the tier and
// writes it to every local slot and to the remote tier collection.
//
// An invalid identity aborts before anything is written. A PersistenceError
// names the step that failed; earlier steps stay committed and the next
// consolidation reconciles them.
func (uc *ProfileUsecase) SaveOwnProfile(ctx context.Context, input SaveProfileInput) (domain.Profile, error) {
	ctx, span := profileTracer.Start(ctx, "Profile.Usecase.SaveOwnProfile")
	defer span.End()

	tier := input.Tier
	slot := tier.SlotKey()
	if slot == "" {
		return domain.Profile{}, &domain.ValidationError{Reason: "unknown tier " + string(tier)}
	}
	span.SetAttributes(attribute.String("tier", string(tier)))

	existing, err := loadDocument(ctx, uc.cache, slot)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			span.RecordError(err)
			return domain.Profile{}, &domain.PersistenceError{Stage: "load", Err: err}
		}
		existing = castline.Document{}
	}

	merged := castline.Merge(existing, input.Fields)

	identity, err := castline.NormalizeIdentity(merged.String("email"))
	if err != nil {
		return domain.Profile{}, &domain.InvalidIdentityError{Field: "email", Raw: merged.String("email")}
	}
	merged["email"] = identity

	if rep := merged.String("representativeEmail"); strings.TrimSpace(rep) != "" {
		normalized, err := castline.NormalizeIdentity(rep)
		if err != nil {
			return domain.Profile{}, &domain.InvalidIdentityError{Field: "representativeEmail", Raw: rep}
		}
		merged["representativeEmail"] = normalized
	}

	p, err := domain.DecodeProfile(merged)
	if err != nil {
		return domain.Profile{}, pkgerrors.Wrap(err, "decode profile")
	}
	p.MembershipTier = tier

	p.Kind = uc.inferKind(ctx, identity, existing, input.Fields, merged)
	if p.Kind == domain.KindResource {
		p.LockedKind = domain.KindResource
	}
	p.Clamp()

	now := uc.clock.Now()
	uc.applyHighlight(&p, existing, input, now)

	if uc.screener != nil {
		if err := uc.screener.Screen(ctx, p); err != nil {
			span.RecordError(err)
			return domain.Profile{}, err
		}
		p.Flagged = false
	}

	p.LastUpdatedAt = &now
	if p.Timestamp == nil {
		p.Timestamp = &now
	}

	typed, err := p.Document()
	if err != nil {
		return domain.Profile{}, pkgerrors.Wrap(err, "encode profile")
	}
	record := castline.Merge(merged, typed)

	steps := []struct {
		stage string
		run   func() error
	}{
		{"identity-slot", func() error {
			return storeJSON(ctx, uc.cache, domain.IdentitySlotKey(castline.SanitizeIdentity(identity)), record)
		}},
		{"mirror", func() error {
			return storeJSON(ctx, uc.cache, domain.KeyUserProfile, castline.Merge(record, castline.Document{"profileStatus": tier.ProfileStatus()}))
		}},
		{"tier-slot", func() error {
			return storeJSON(ctx, uc.cache, slot, record)
		}},
		{"remote", func() error {
			return uc.store.SetDocument(ctx, tier.Collection(), identity, record, true)
		}},
		{"session", func() error {
			return uc.updateUserData(ctx, identity, tier)
		}},
		{"cleanup", func() error {
			return uc.cleanupOtherTiers(ctx, identity, tier)
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			uc.logger.Error().Err(err).Str("stage", step.stage).Str("identity", identity).Msg("own profile save failed")
			span.RecordError(err)
			span.SetStatus(codes.Error, step.stage)
			return domain.Profile{}, &domain.PersistenceError{Stage: step.stage, Err: err}
		}
	}

	if uc.rebuilder != nil {
		uc.rebuilder.RebuildAggregate(ctx)
	}

	return p, nil
}

// inferKind keeps resource listings resource across edits and tier changes.
func (uc *ProfileUsecase) inferKind(ctx context.Context, identity string, existing, incoming, merged castline.Document) domain.Kind {
	existingKind := domain.ParseKind(existing.String("profileKind"))
	incomingKind := domain.ParseKind(incoming.String("profileKind"))
	locked := domain.ParseKind(merged.String("lockedProfileKind"))

	if locked == domain.KindResource || existingKind == domain.KindResource || incomingKind == domain.KindResource {
		return domain.KindResource
	}

	if mirror, err := loadDocument(ctx, uc.cache, domain.KeyUserProfile); err == nil {
		if id, err := castline.NormalizeIdentity(mirror.String("email")); err == nil && id == identity &&
			domain.ParseKind(mirror.String("lockedProfileKind")) == domain.KindResource {
			return domain.KindResource
		}
	}

	if incomingKind != domain.KindUnknown {
		return incomingKind
	}
	if existingKind != domain.KindUnknown {
		return existingKind
	}
	return domain.KindTalent
}

// applyHighlight sets the highlight only for an explicit pro activation and
// clears it on every other path. A running highlight is extended rather than
// restarted.
func (uc *ProfileUsecase) applyHighlight(p *domain.Profile, existing castline.Document, input SaveProfileInput, now time.Time) {
	if input.Tier != domain.TierPro || !input.ActivateHighlight {
		p.ClearHighlight()
		return
	}

	days := input.HighlightDays
	if days <= 0 {
		days = domain.DefaultHighlightDays
	}

	start := now
	if prev, err := domain.DecodeProfile(existing); err == nil && prev.Highlighted && prev.HighlightedUntil != nil && prev.HighlightedUntil.After(now) {
		start = *prev.HighlightedUntil
	}
	until := start.AddDate(0, 0, days)
	p.Highlighted = true
	p.HighlightedUntil = &until
}

func (uc *ProfileUsecase) updateUserData(ctx context.Context, identity string, tier domain.Tier) error {
	doc, err := loadDocument(ctx, uc.cache, domain.KeyUserData)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		doc = castline.Document{}
	}
	if current, err := castline.NormalizeIdentity(doc.String("email")); err != nil || current != identity {
		doc = castline.Document{}
	}
	return storeJSON(ctx, uc.cache, domain.KeyUserData, castline.Merge(doc, castline.Document{
		"email":          identity,
		"membershipType": string(tier),
		"profileStatus":  tier.ProfileStatus(),
	}))
}

// cleanupOtherTiers removes the identity's own records from the two tiers it
// is not on. Every delete is idempotent.
func (uc *ProfileUsecase) cleanupOtherTiers(ctx context.Context, identity string, tier domain.Tier) error {
	var errs []error
	for _, other := range domain.Tiers {
		if other == tier {
			continue
		}
		if err := uc.store.DeleteDocument(ctx, other.Collection(), identity); err != nil {
			errs = append(errs, pkgerrors.Wrapf(err, "delete %s/%s", other.Collection(), identity))
		}
		if err := uc.cache.RemoveLocal(ctx, other.SlotKey()); err != nil {
			errs = append(errs, pkgerrors.Wrapf(err, "remove %s", other.SlotKey()))
		}
	}
	return errors.Join(errs...)
}
