package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/totegamma/castline"
	"github.com/totegamma/castline/internal/domain"
)

var consolidationTracer = otel.Tracer("consolidation")

type ConsolidationUsecase struct {
	store    DocumentStore
	cache    LocalCache
	notifier AggregateNotifier
	channel  string
	clock    Clock
	logger   zerolog.Logger
}

func NewConsolidationUsecase(
	store DocumentStore,
	cache LocalCache,
	notifier AggregateNotifier,
	channel string,
	clock Clock,
	logger zerolog.Logger,
) *ConsolidationUsecase {
	return &ConsolidationUsecase{
		store:    store,
		cache:    cache,
		notifier: notifier,
		channel:  channel,
		clock:    clock,
		logger:   logger.With().Str("component", "consolidation").Logger(),
	}
}

// RebuildAggregate merges every tier collection, the cached aggregate and the
// session's own profile into one record per identity and writes the result
// back to the local cache. Failures are logged; whatever could be gathered
// is still written and returned.
func (uc *ConsolidationUsecase) RebuildAggregate(ctx context.Context) []domain.Profile {
	ctx, span := consolidationTracer.Start(ctx, "Consolidation.Usecase.RebuildAggregate")
	defer span.End()

	agg, seen := uc.collectRemote(ctx)
	span.SetAttributes(attribute.Int("fresh", len(agg.order)))

	previous, err := loadProfiles(ctx, uc.cache, domain.KeyAllProfiles)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		uc.logger.Warn().Err(err).Msg("cached aggregate unreadable")
		span.RecordError(err)
	}
	preserved := uc.preserve(agg, previous, seen)
	if preserved > 0 {
		uc.logger.Debug().Int("count", preserved).Msg("preserved cached profiles missing from remote")
	}

	userData, hasSession := uc.sessionData(ctx)
	if hasSession {
		own := uc.ownProfile(ctx, userData)
		if own != nil && uc.placeOwn(agg, *own, seen) {
			uc.logger.Debug().Str("identity", own.Identity).Msg("own profile added to aggregate")
		}
	}

	result := uc.persist(ctx, agg.list(), seen)
	span.SetAttributes(attribute.Int("total", len(result)))

	if hasSession {
		uc.resyncOwnSlot(ctx, userData, result)
	}

	return result
}

// collectRemote fetches every tier collection and returns the rank-resolved
// candidates plus every identity observed in a successful fetch.
func (uc *ConsolidationUsecase) collectRemote(ctx context.Context) (*aggregate, map[string]bool) {
	span := trace.SpanFromContext(ctx)

	agg := newAggregate()
	seen := make(map[string]bool)

	for _, tier := range domain.Tiers {
		docs, err := uc.store.ListDocuments(ctx, tier.Collection())
		if err != nil {
			uc.logger.Warn().Err(err).Str("collection", tier.Collection()).Msg("collection fetch failed, continuing with partial data")
			span.RecordError(err)
			continue
		}

		for _, doc := range docs {
			p, err := domain.DecodeProfile(doc)
			if err != nil {
				uc.logger.Debug().Err(err).Str("collection", tier.Collection()).Msg("undecodable document skipped")
				continue
			}
			identity, err := castline.NormalizeIdentity(p.Identity)
			if err != nil {
				continue
			}
			seen[identity] = true

			if !p.Visible {
				continue
			}
			p, err = admissible(p, tier)
			if err != nil {
				uc.logger.Debug().Err(err).Msg("record not admitted")
				continue
			}
			agg.offer(p)
		}
	}

	return agg, seen
}

// preserve re-admits previously cached profiles whose identity the remote
// pass did not observe at all.
func (uc *ConsolidationUsecase) preserve(agg *aggregate, previous []domain.Profile, seen map[string]bool) int {
	count := 0
	for _, p := range previous {
		if !p.Visible {
			continue
		}
		p, err := admissible(p, p.MembershipTier)
		if err != nil || seen[p.Identity] {
			continue
		}
		if agg.fill(p) {
			count++
		}
	}
	return count
}

func (uc *ConsolidationUsecase) sessionData(ctx context.Context) (domain.UserData, bool) {
	userData, _, err := loadUserData(ctx, uc.cache)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			uc.logger.Warn().Err(err).Msg("session data unreadable")
		}
		return domain.UserData{}, false
	}
	identity, err := castline.NormalizeIdentity(userData.Identity)
	if err != nil {
		return domain.UserData{}, false
	}
	userData.Identity = identity
	return userData, true
}

// ownProfile loads the session's own record from its tier slot, falling
// back to the canonical mirror.
func (uc *ConsolidationUsecase) ownProfile(ctx context.Context, userData domain.UserData) *domain.Profile {
	keys := []string{}
	if slot := userData.MembershipTier.SlotKey(); slot != "" {
		keys = append(keys, slot)
	}
	keys = append(keys, domain.KeyUserProfile)

	for _, key := range keys {
		doc, err := loadDocument(ctx, uc.cache, key)
		if err != nil {
			continue
		}
		p, err := domain.DecodeProfile(doc)
		if err != nil || !p.Visible {
			continue
		}
		p, err = admissible(p, userData.MembershipTier)
		if err != nil || p.Identity != userData.Identity {
			continue
		}
		return &p
	}
	return nil
}

// placeOwn adds the session's own record. It never displaces a fetched
// record but replaces a cached entry for an identity no collection returned.
func (uc *ConsolidationUsecase) placeOwn(agg *aggregate, own domain.Profile, seen map[string]bool) bool {
	if seen[own.Identity] {
		return agg.fill(own)
	}
	return agg.replace(own)
}

// persist writes the aggregate and its per-tier snapshots. The cached
// aggregate is re-read right before the write so that entries admitted by
// a concurrent rebuild are merged in rather than overwritten.
func (uc *ConsolidationUsecase) persist(ctx context.Context, profiles []domain.Profile, seen map[string]bool) []domain.Profile {
	span := trace.SpanFromContext(ctx)

	final := newAggregate()
	for _, p := range profiles {
		p, err := admissible(p, p.MembershipTier)
		if err != nil {
			continue
		}
		final.fill(p)
	}

	latest, err := loadProfiles(ctx, uc.cache, domain.KeyAllProfiles)
	if err == nil {
		uc.preserve(final, latest, seen)
	}

	result := final.list()

	// Tier snapshots are cut from the aggregate.
	writes := []struct {
		key      string
		profiles []domain.Profile
	}{
		{domain.KeyAllProfiles, result},
		{domain.KeyAllProfilesElite, filterTier(result, domain.TierElite)},
		{domain.KeyAllProfilesFree, filterTier(result, domain.TierFree)},
		{domain.KeyAllProfilesPro, filterTier(result, domain.TierPro)},
	}
	for _, w := range writes {
		if err := storeProfiles(ctx, uc.cache, w.key, w.profiles); err != nil {
			uc.logger.Error().Err(err).Str("key", w.key).Msg("aggregate write failed")
			span.RecordError(err)
			span.SetStatus(codes.Error, "aggregate write failed")
		}
	}

	uc.signalChange(ctx, result)
	return result
}

func (uc *ConsolidationUsecase) signalChange(ctx context.Context, result []domain.Profile) {
	hash, err := fingerprint(result)
	if err != nil {
		return
	}
	previous, err := uc.cache.GetLocal(ctx, domain.KeyAllProfilesHash)
	if err == nil && previous == hash {
		return
	}
	if err := uc.cache.SetLocal(ctx, domain.KeyAllProfilesHash, hash); err != nil {
		uc.logger.Warn().Err(err).Msg("fingerprint write failed")
	}

	if uc.notifier == nil {
		return
	}
	event := castline.Event{
		Type:        castline.EventAggregateChanged,
		Fingerprint: hash,
		Count:       len(result),
		At:          uc.clock.Now(),
	}
	if err := uc.notifier.Publish(ctx, uc.channel, event); err != nil {
		uc.logger.Warn().Err(err).Msg("aggregate change signal failed")
	}
}

// resyncOwnSlot merges the consolidated entry for the session identity over
// the session's own tier slot so remote edits show up locally.
func (uc *ConsolidationUsecase) resyncOwnSlot(ctx context.Context, userData domain.UserData, result []domain.Profile) {
	slot := userData.MembershipTier.SlotKey()
	if slot == "" {
		return
	}
	for _, p := range result {
		if p.Identity != userData.Identity {
			continue
		}
		if p.MembershipTier != userData.MembershipTier {
			return
		}
		existing, err := loadDocument(ctx, uc.cache, slot)
		if err != nil {
			existing = castline.Document{}
		}
		doc, err := p.Document()
		if err != nil {
			return
		}
		if err := storeJSON(ctx, uc.cache, slot, castline.Merge(existing, doc)); err != nil {
			uc.logger.Warn().Err(err).Str("key", slot).Msg("own slot resync failed")
		}
		return
	}
}
