package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/castline"
	"github.com/totegamma/castline/internal/domain"
)

var sessionTracer = otel.Tracer("session")

// Backupper snapshots the aggregate to durable storage.
type Backupper interface {
	Backup(ctx context.Context) bool
}

type SessionUsecase struct {
	store     DocumentStore
	cache     LocalCache
	rebuilder AggregateRebuilder
	backup    Backupper
	clock     Clock
	logger    zerolog.Logger
}

func NewSessionUsecase(
	store DocumentStore,
	cache LocalCache,
	rebuilder AggregateRebuilder,
	backup Backupper,
	clock Clock,
	logger zerolog.Logger,
) *SessionUsecase {
	return &SessionUsecase{
		store:     store,
		cache:     cache,
		rebuilder: rebuilder,
		backup:    backup,
		clock:     clock,
		logger:    logger.With().Str("component", "session").Logger(),
	}
}

// Resolve decides the state of the current session. Lapsed unpaid trials are
// downgraded first; a ready session gets a fresh aggregate and backup before
// it is returned.
func (uc *SessionUsecase) Resolve(ctx context.Context) (domain.Session, error) {
	ctx, span := sessionTracer.Start(ctx, "Session.Usecase.Resolve")
	defer span.End()

	userData, doc, err := loadUserData(ctx, uc.cache)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			uc.logger.Warn().Err(err).Msg("session data unreadable")
		}
		return domain.Session{State: domain.StateNoSession}, nil
	}
	identity, err := castline.NormalizeIdentity(userData.Identity)
	if err != nil {
		return domain.Session{State: domain.StateNoSession}, nil
	}
	userData.Identity = identity
	if userData.MembershipTier == domain.TierUnknown {
		userData.MembershipTier = domain.TierFree
	}
	span.SetAttributes(attribute.String("tier", string(userData.MembershipTier)))

	session := domain.Session{
		Identity:    identity,
		Tier:        userData.MembershipTier,
		HasPaid:     userData.HasPaid,
		TrialEndsAt: userData.TrialEndsAt,
	}

	now := uc.clock.Now()
	if userData.MembershipTier != domain.TierFree && userData.TrialExpired(now) {
		session.State = domain.StateDowngradePending
		if err := uc.downgrade(ctx, &userData, doc); err != nil {
			span.RecordError(err)
			return session, err
		}
		session.Tier = userData.MembershipTier
		session.HasPaid = userData.HasPaid
		session.TrialEndsAt = userData.TrialEndsAt
		session.Downgraded = true
	}

	own := uc.ownProfile(ctx, userData)
	if own == nil {
		session.State = domain.StateProfileIncomplete
		session.Missing = []string{"profile"}
		return session, nil
	}
	session.Profile = own
	if missing := domain.MissingFields(*own); len(missing) > 0 {
		session.State = domain.StateProfileIncomplete
		session.Missing = missing
		return session, nil
	}

	state := domain.StateActive
	if userData.MembershipTier != domain.TierFree && !userData.HasPaid && userData.TrialEndsAt != nil {
		state = domain.StateTrialActive
	}

	if uc.rebuilder != nil {
		uc.rebuilder.RebuildAggregate(ctx)
	}
	if uc.backup != nil && !uc.backup.Backup(ctx) {
		uc.logger.Warn().Str("identity", identity).Msg("backup after session start failed")
	}

	session.State = state
	return session, nil
}

func (uc *SessionUsecase) ownProfile(ctx context.Context, userData domain.UserData) *domain.Profile {
	for _, key := range []string{userData.MembershipTier.SlotKey(), domain.KeyUserProfile} {
		doc, err := loadDocument(ctx, uc.cache, key)
		if err != nil {
			continue
		}
		p, err := domain.DecodeProfile(doc)
		if err != nil {
			continue
		}
		if id, err := castline.NormalizeIdentity(p.Identity); err != nil || id != userData.Identity {
			continue
		}
		if p.MembershipTier != userData.MembershipTier {
			continue
		}
		return &p
	}
	return nil
}

// downgrade applies the lapsed-trial rules. userData is only rewritten after
// the store and audit steps succeeded, so a failed attempt is retried on the
// next start.
func (uc *SessionUsecase) downgrade(ctx context.Context, userData *domain.UserData, doc castline.Document) error {
	identity := userData.Identity
	from := userData.MembershipTier

	switch from {
	case domain.TierPro:
		if err := uc.store.DeleteDocument(ctx, domain.CollectionPro, identity); err != nil {
			return &domain.PersistenceError{Stage: "downgrade-remote", Err: err}
		}
		if err := uc.cache.RemoveLocal(ctx, domain.KeyUserProfilePro); err != nil {
			return &domain.PersistenceError{Stage: "downgrade-slot", Err: err}
		}
		if err := uc.patchLocal(ctx, domain.KeyUserProfile, identity, castline.Document{
			"membershipType":   string(domain.TierFree),
			"profileStatus":    domain.TierFree.ProfileStatus(),
			"isHighlighted":    false,
			"highlightedUntil": nil,
			"hasPaid":          false,
		}); err != nil {
			return &domain.PersistenceError{Stage: "downgrade-mirror", Err: err}
		}
		userData.MembershipTier = domain.TierFree

	case domain.TierElite:
		patch := castline.Document{"hasPaid": false}
		if err := uc.store.SetDocument(ctx, domain.CollectionElite, identity, patch, true); err != nil {
			return &domain.PersistenceError{Stage: "downgrade-remote", Err: err}
		}
		for _, key := range []string{domain.KeyUserProfileElite, domain.KeyUserProfile} {
			if err := uc.patchLocal(ctx, key, identity, patch); err != nil {
				return &domain.PersistenceError{Stage: "downgrade-mirror", Err: err}
			}
		}

	default:
		return nil
	}

	now := uc.clock.Now()
	entry := domain.DowngradeLog{
		ID:       uuid.NewString(),
		Identity: identity,
		Date:     now,
		Reason:   domain.DowngradeReasonTrialExpired,
		FromTier: from,
	}
	auditDoc, err := toDocument(entry)
	if err == nil {
		err = uc.store.SetDocument(ctx, domain.CollectionAudit, entry.ID, auditDoc, false)
	}
	if err != nil {
		return &domain.PersistenceError{Stage: "downgrade-audit", Err: err}
	}

	userData.HasPaid = false
	userData.TrialEndsAt = nil
	if err := storeJSON(ctx, uc.cache, domain.KeyUserData, castline.Merge(doc, castline.Document{
		"membershipType": string(userData.MembershipTier),
		"profileStatus":  userData.MembershipTier.ProfileStatus(),
		"hasPaid":        false,
		"trialEndsAt":    nil,
	})); err != nil {
		return &domain.PersistenceError{Stage: "downgrade-session", Err: err}
	}

	uc.logger.Info().Str("identity", identity).Str("from", string(from)).Msg("trial expired, downgraded")
	return nil
}

// patchLocal merges patch into a cached own-record, provided it belongs to identity.
func (uc *SessionUsecase) patchLocal(ctx context.Context, key, identity string, patch castline.Document) error {
	doc, err := loadDocument(ctx, uc.cache, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return pkgerrors.Wrapf(err, "load %s", key)
	}
	if id, err := castline.NormalizeIdentity(doc.String("email")); err != nil || id != identity {
		return nil
	}
	return storeJSON(ctx, uc.cache, key, castline.Merge(doc, patch))
}
