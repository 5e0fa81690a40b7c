package usecase

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"

	"github.com/totegamma/castline"
	"github.com/totegamma/castline/internal/domain"
)

func loadDocument(ctx context.Context, cache LocalCache, key string) (castline.Document, error) {
	raw, err := cache.GetLocal(ctx, key)
	if err != nil {
		return nil, err
	}
	doc, err := castline.ParseDocument(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", key)
	}
	return doc, nil
}

func storeJSON(ctx context.Context, cache LocalCache, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return cache.SetLocal(ctx, key, string(b))
}

// loadProfiles reads a cached profile list. Entries that no longer decode are skipped.
func loadProfiles(ctx context.Context, cache LocalCache, key string) ([]domain.Profile, error) {
	raw, err := cache.GetLocal(ctx, key)
	if err != nil {
		return nil, err
	}
	var docs []castline.Document
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		return nil, errors.Wrapf(err, "decode %s", key)
	}
	profiles := make([]domain.Profile, 0, len(docs))
	for _, doc := range docs {
		p, err := domain.DecodeProfile(doc)
		if err != nil {
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func storeProfiles(ctx context.Context, cache LocalCache, key string, profiles []domain.Profile) error {
	if profiles == nil {
		profiles = []domain.Profile{}
	}
	return storeJSON(ctx, cache, key, profiles)
}

func loadUserData(ctx context.Context, cache LocalCache) (domain.UserData, castline.Document, error) {
	doc, err := loadDocument(ctx, cache, domain.KeyUserData)
	if err != nil {
		return domain.UserData{}, nil, err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return domain.UserData{}, nil, err
	}
	var ud domain.UserData
	if err := json.Unmarshal(b, &ud); err != nil {
		return domain.UserData{}, nil, errors.Wrap(err, "decode userData")
	}
	return ud, doc, nil
}

func fingerprint(profiles []domain.Profile) (string, error) {
	b, err := json.Marshal(profiles)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(xxh3.Hash(b), 16), nil
}

// aggregate keeps at most one profile per identity in first-seen order.
type aggregate struct {
	order []string
	byID  map[string]domain.Profile
}

func newAggregate() *aggregate {
	return &aggregate{byID: make(map[string]domain.Profile)}
}

// offer adds p, replacing an existing entry only when p has a strictly higher rank.
func (a *aggregate) offer(p domain.Profile) bool {
	current, ok := a.byID[p.Identity]
	if !ok {
		a.order = append(a.order, p.Identity)
		a.byID[p.Identity] = p
		return true
	}
	if p.MembershipTier.Rank() > current.MembershipTier.Rank() {
		a.byID[p.Identity] = p
		return true
	}
	return false
}

// fill adds p only when the identity is not present yet.
func (a *aggregate) fill(p domain.Profile) bool {
	if _, ok := a.byID[p.Identity]; ok {
		return false
	}
	a.order = append(a.order, p.Identity)
	a.byID[p.Identity] = p
	return true
}

// replace sets p for its identity, keeping the identity's original position.
func (a *aggregate) replace(p domain.Profile) bool {
	if _, ok := a.byID[p.Identity]; !ok {
		a.order = append(a.order, p.Identity)
	}
	a.byID[p.Identity] = p
	return true
}

func (a *aggregate) list() []domain.Profile {
	out := make([]domain.Profile, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.byID[id])
	}
	return out
}

func filterTier(profiles []domain.Profile, tier domain.Tier) []domain.Profile {
	out := []domain.Profile{}
	for _, p := range profiles {
		if p.MembershipTier == tier {
			out = append(out, p)
		}
	}
	return out
}

// admissible normalizes p and applies the admission filter and the
// per-tier field policy. The fallback tier is used when p carries none.
func admissible(p domain.Profile, fallback domain.Tier) (domain.Profile, error) {
	identity, err := castline.NormalizeIdentity(p.Identity)
	if err != nil {
		return p, &domain.ValidationError{Identity: p.Identity, Reason: "invalid identity"}
	}
	p.Identity = identity
	if p.MembershipTier == domain.TierUnknown {
		p.MembershipTier = fallback
	}
	if err := domain.Admit(p); err != nil {
		return p, err
	}
	if p.MembershipTier != domain.TierPro {
		p.ClearHighlight()
	}
	p.Clamp()
	return p, nil
}
