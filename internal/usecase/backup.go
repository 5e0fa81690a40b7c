package usecase

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/totegamma/castline"
	"github.com/totegamma/castline/internal/domain"
)

var backupTracer = otel.Tracer("backup")

type BackupUsecase struct {
	store  DocumentStore
	cache  LocalCache
	clock  Clock
	logger zerolog.Logger
}

func NewBackupUsecase(store DocumentStore, cache LocalCache, clock Clock, logger zerolog.Logger) *BackupUsecase {
	return &BackupUsecase{
		store:  store,
		cache:  cache,
		clock:  clock,
		logger: logger.With().Str("component", "backup").Logger(),
	}
}

// Backup snapshots the remote tier collections into the durable backups
// collection and into the local per-tier snapshots. Nothing is written
// unless all three collections could be read.
func (uc *BackupUsecase) Backup(ctx context.Context) bool {
	ctx, span := backupTracer.Start(ctx, "Backup.Usecase.Backup")
	defer span.End()

	subsets := make(map[domain.Tier][]domain.Profile, len(domain.Tiers))
	seen := make(map[string]bool)
	for _, tier := range domain.Tiers {
		docs, err := uc.store.ListDocuments(ctx, tier.Collection())
		if err != nil {
			uc.logger.Error().Err(err).Str("collection", tier.Collection()).Msg("backup fetch failed")
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch failed")
			return false
		}

		agg := newAggregate()
		for _, doc := range docs {
			p, err := domain.DecodeProfile(doc)
			if err != nil {
				continue
			}
			if identity, err := castline.NormalizeIdentity(p.Identity); err == nil {
				seen[identity] = true
			}
			if !p.Visible {
				continue
			}
			p, err = admissible(p, tier)
			if err != nil {
				continue
			}
			agg.offer(p)
		}
		subsets[tier] = agg.list()
	}

	union := newAggregate()
	for _, p := range subsets[domain.TierFree] {
		union.offer(p)
	}
	for _, p := range subsets[domain.TierPro] {
		union.offer(p)
	}
	span.SetAttributes(
		attribute.Int("union", len(union.order)),
		attribute.Int("elite", len(subsets[domain.TierElite])),
	)

	now := uc.clock.Now()
	durable := []struct {
		key  string
		list []domain.Profile
	}{
		{domain.BackupKeyAll, union.list()},
		{domain.BackupKeyElite, subsets[domain.TierElite]},
	}
	for _, d := range durable {
		doc, err := toDocument(castline.BackupDocument[domain.Profile]{List: d.list, UpdatedAt: now})
		if err == nil {
			err = uc.store.SetDocument(ctx, domain.CollectionBackups, d.key, doc, false)
		}
		if err != nil {
			uc.logger.Error().Err(err).Str("key", d.key).Msg("durable backup write failed")
			span.RecordError(err)
			span.SetStatus(codes.Error, "durable write failed")
			return false
		}
	}

	// The canonical aggregate is rank-resolved over every fresh tier. Cached
	// entries only survive for identities no collection holds.
	canonical := newAggregate()
	for _, tier := range domain.Tiers {
		for _, p := range subsets[tier] {
			canonical.offer(p)
		}
	}
	if current, err := loadProfiles(ctx, uc.cache, domain.KeyAllProfiles); err == nil {
		uc.preserveCached(canonical, current, seen)
	}

	ok := true
	writes := []struct {
		key      string
		profiles []domain.Profile
	}{
		{domain.TierFree.SnapshotKey(), subsets[domain.TierFree]},
		{domain.TierPro.SnapshotKey(), subsets[domain.TierPro]},
		{domain.TierElite.SnapshotKey(), subsets[domain.TierElite]},
		{domain.KeyAllProfiles, canonical.list()},
	}
	for _, w := range writes {
		if err := storeProfiles(ctx, uc.cache, w.key, w.profiles); err != nil {
			uc.logger.Error().Err(err).Str("key", w.key).Msg("local snapshot write failed")
			span.RecordError(err)
			ok = false
		}
	}
	return ok
}

func (uc *BackupUsecase) preserveCached(agg *aggregate, cached []domain.Profile, seen map[string]bool) {
	for _, p := range cached {
		if !p.Visible {
			continue
		}
		p, err := admissible(p, p.MembershipTier)
		if err != nil || seen[p.Identity] {
			continue
		}
		agg.fill(p)
	}
}

// Restore replaces the local aggregate and snapshots with the durable backup.
// It is meant for cold starts with an empty or corrupted local cache.
func (uc *BackupUsecase) Restore(ctx context.Context) bool {
	ctx, span := backupTracer.Start(ctx, "Backup.Usecase.Restore")
	defer span.End()

	lists := make(map[string][]domain.Profile, 2)
	for _, key := range []string{domain.BackupKeyAll, domain.BackupKeyElite} {
		doc, err := uc.store.GetDocument(ctx, domain.CollectionBackups, key)
		if err != nil {
			uc.logger.Warn().Err(err).Str("key", key).Msg("backup document unavailable")
			span.RecordError(err)
			return false
		}
		list, err := decodeBackupList(doc)
		if err != nil {
			uc.logger.Warn().Err(err).Str("key", key).Msg("backup document malformed")
			span.RecordError(err)
			return false
		}
		lists[key] = list
	}

	merged := newAggregate()
	elite := newAggregate()
	for _, p := range lists[domain.BackupKeyAll] {
		if p, err := admissible(p, p.MembershipTier); err == nil && p.Visible {
			merged.offer(p)
		}
	}
	for _, p := range lists[domain.BackupKeyElite] {
		if p, err := admissible(p, domain.TierElite); err == nil && p.Visible {
			merged.offer(p)
			elite.offer(p)
		}
	}

	all := merged.list()
	writes := []struct {
		key      string
		profiles []domain.Profile
	}{
		{domain.KeyAllProfiles, all},
		{domain.KeyAllProfilesElite, elite.list()},
		{domain.KeyAllProfilesFree, filterTier(all, domain.TierFree)},
		{domain.KeyAllProfilesPro, filterTier(all, domain.TierPro)},
	}
	for _, w := range writes {
		if err := storeProfiles(ctx, uc.cache, w.key, w.profiles); err != nil {
			uc.logger.Error().Err(err).Str("key", w.key).Msg("restore write failed")
			span.RecordError(err)
			span.SetStatus(codes.Error, "restore write failed")
			return false
		}
	}

	uc.logger.Info().Int("profiles", len(all)).Msg("local aggregate restored from backup")
	return true
}

func toDocument(v any) (castline.Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return castline.ParseDocument(string(b))
}

func decodeBackupList(doc castline.Document) ([]domain.Profile, error) {
	raw, ok := doc["list"].([]any)
	if !ok {
		return nil, errors.New("backup document has no list")
	}
	profiles := make([]domain.Profile, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		p, err := domain.DecodeProfile(castline.Document(entry))
		if err != nil {
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}
