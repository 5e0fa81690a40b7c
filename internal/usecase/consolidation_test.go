package usecase

import (
	"context"
	"testing"

	"github.com/totegamma/castline"
	"github.com/totegamma/castline/internal/domain"
)

func newTestConsolidation(store *fakeStore, cache *fakeCache, notifier *recordingNotifier) *ConsolidationUsecase {
	if notifier == nil {
		return NewConsolidationUsecase(store, cache, nil, "castline", fixedClock{testNow}, nopLogger())
	}
	return NewConsolidationUsecase(store, cache, notifier, "castline", fixedClock{testNow}, nopLogger())
}

func TestRebuildAggregateHigherTierWins(t *testing.T) {
	store := newFakeStore()
	store.put(domain.CollectionFree, "ana@x.com", profileDoc("ana@x.com", "Ana Free", "free.jpg", "free", nil))
	store.put(domain.CollectionElite, "ana@x.com", profileDoc("ANA@x.com", "Ana Elite", "elite.jpg", "", nil))
	store.put(domain.CollectionPro, "ana@x.com", profileDoc("ana@x.com", "Ana Pro", "pro.jpg", "pro", nil))
	cache := newFakeCache()

	result := newTestConsolidation(store, cache, nil).RebuildAggregate(context.Background())

	if len(result) != 1 {
		t.Fatalf("expected one profile per identity, got %d", len(result))
	}
	if result[0].MembershipTier != domain.TierElite || result[0].DisplayName != "Ana Elite" {
		t.Fatalf("expected the elite record to win, got %+v", result[0])
	}
	if got := cachedProfiles(t, cache, domain.KeyAllProfilesElite); len(got) != 1 {
		t.Fatalf("expected elite snapshot with one entry, got %d", len(got))
	}
	if got := cachedProfiles(t, cache, domain.KeyAllProfilesFree); len(got) != 0 {
		t.Fatalf("expected empty free snapshot, got %d", len(got))
	}
}

func TestRebuildAggregateRepairsIdentities(t *testing.T) {
	store := newFakeStore()
	store.put(domain.CollectionFree, "1", profileDoc(" A@B@Test.com ", "Broken", "a.jpg", "free", nil))
	store.put(domain.CollectionPro, "2", profileDoc("a.b@test.com", "Fixed", "b.jpg", "pro", nil))
	cache := newFakeCache()

	result := newTestConsolidation(store, cache, nil).RebuildAggregate(context.Background())

	if len(result) != 1 {
		t.Fatalf("expected repaired identities to collapse, got %d", len(result))
	}
	if result[0].Identity != "a.b@test.com" || result[0].MembershipTier != domain.TierPro {
		t.Fatalf("unexpected entry %+v", result[0])
	}
}

func TestRebuildAggregateAdmission(t *testing.T) {
	store := newFakeStore()
	store.put(domain.CollectionFree, "ok", profileDoc("ok@x.com", "Ok", "ok.jpg", "free", nil))
	store.put(domain.CollectionFree, "noname", profileDoc("noname@x.com", "  ", "n.jpg", "free", nil))
	store.put(domain.CollectionFree, "nophoto", profileDoc("nophoto@x.com", "No Photo", "", "free", nil))
	store.put(domain.CollectionFree, "bad", profileDoc("not-an-email", "Bad", "b.jpg", "free", nil))
	store.put(domain.CollectionFree, "hidden", profileDoc("hidden@x.com", "Hidden", "h.jpg", "free", castline.Document{"visible": false}))
	cache := newFakeCache()

	result := newTestConsolidation(store, cache, nil).RebuildAggregate(context.Background())

	if len(result) != 1 || result[0].Identity != "ok@x.com" {
		t.Fatalf("expected only ok@x.com to be admitted, got %+v", result)
	}
}

func TestRebuildAggregateAppliesFieldPolicy(t *testing.T) {
	store := newFakeStore()
	store.put(domain.CollectionFree, "f", profileDoc("f@x.com", "F", "f.jpg", "free", castline.Document{
		"isHighlighted":    true,
		"highlightedUntil": testNow.AddDate(0, 0, 3),
		"category":         []any{"a", "b", "c", "d"},
		"bookPhotos":       []any{"1", "2", "3", "4", "5"},
	}))
	store.put(domain.CollectionPro, "r", profileDoc("r@x.com", "R", "r.jpg", "pro", castline.Document{
		"profileKind":      "resource",
		"category":         []any{"studio", "gear"},
		"isHighlighted":    true,
		"highlightedUntil": testNow.AddDate(0, 0, 3),
	}))
	cache := newFakeCache()

	got := byIdentity(newTestConsolidation(store, cache, nil).RebuildAggregate(context.Background()))

	free := got["f@x.com"]
	if free.Highlighted || free.HighlightedUntil != nil {
		t.Fatalf("free profile must not carry a highlight: %+v", free)
	}
	if len(free.Categories) != domain.MaxTalentCategories || len(free.MediaGallery) != domain.MaxGallery {
		t.Fatalf("expected caps applied, got %d categories %d photos", len(free.Categories), len(free.MediaGallery))
	}
	resource := got["r@x.com"]
	if len(resource.Categories) != 1 || resource.Categories[0] != "studio" {
		t.Fatalf("expected resource categories truncated to one, got %v", resource.Categories)
	}
	if !resource.HighlightActive(testNow) {
		t.Fatalf("expected pro highlight to survive")
	}
}

func TestRebuildAggregateFailedCollectionKeepsCachedEntries(t *testing.T) {
	store := newFakeStore()
	store.put(domain.CollectionFree, "ana", profileDoc("ana@x.com", "Ana", "a.jpg", "free", nil))
	store.put(domain.CollectionFree, "carol", profileDoc("carol@x.com", "Carol", "c.jpg", "free", castline.Document{"visible": false}))
	store.failList[domain.CollectionPro] = true

	cache := newFakeCache()
	setJSON(t, cache, domain.KeyAllProfiles, []castline.Document{
		profileDoc("bob@x.com", "Bob", "b.jpg", "pro", nil),
		profileDoc("carol@x.com", "Carol", "c.jpg", "free", nil),
	})

	got := byIdentity(newTestConsolidation(store, cache, nil).RebuildAggregate(context.Background()))

	if _, ok := got["ana@x.com"]; !ok {
		t.Fatalf("expected fresh profile to be present")
	}
	if bob, ok := got["bob@x.com"]; !ok || bob.MembershipTier != domain.TierPro {
		t.Fatalf("expected cached pro profile to be preserved, got %+v", got)
	}
	if _, ok := got["carol@x.com"]; ok {
		t.Fatalf("hidden profile must not be resurrected from cache")
	}
}

func TestRebuildAggregateIsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.put(domain.CollectionFree, "a", profileDoc("a@x.com", "A", "a.jpg", "free", nil))
	store.put(domain.CollectionPro, "b", profileDoc("b@x.com", "B", "b.jpg", "pro", nil))
	cache := newFakeCache()
	notifier := &recordingNotifier{}
	uc := newTestConsolidation(store, cache, notifier)

	uc.RebuildAggregate(context.Background())
	first := cache.values[domain.KeyAllProfiles]
	uc.RebuildAggregate(context.Background())
	second := cache.values[domain.KeyAllProfiles]

	if first != second {
		t.Fatalf("aggregate changed between identical rebuilds:\n%s\n%s", first, second)
	}
	if len(notifier.events) != 1 {
		t.Fatalf("expected a single change event, got %d", len(notifier.events))
	}
	if notifier.events[0].Count != 2 || notifier.events[0].Type != castline.EventAggregateChanged {
		t.Fatalf("unexpected event %+v", notifier.events[0])
	}
}

func TestRebuildAggregateAddsOwnProfile(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	setJSON(t, cache, domain.KeyUserData, castline.Document{"email": "me@x.com", "membershipType": "elite"})
	setJSON(t, cache, domain.KeyUserProfileElite, profileDoc("me@x.com", "Me", "me.jpg", "elite", nil))

	result := newTestConsolidation(store, cache, nil).RebuildAggregate(context.Background())

	if len(result) != 1 || result[0].Identity != "me@x.com" {
		t.Fatalf("expected own profile in aggregate, got %+v", result)
	}
	elite := cachedProfiles(t, cache, domain.KeyAllProfilesElite)
	if len(elite) != 1 || elite[0].Identity != "me@x.com" {
		t.Fatalf("expected own elite profile in elite subset, got %+v", elite)
	}
}

func TestRebuildAggregateResyncsOwnSlot(t *testing.T) {
	store := newFakeStore()
	store.put(domain.CollectionFree, "me@x.com", profileDoc("me@x.com", "Edited Elsewhere", "me.jpg", "free", nil))
	cache := newFakeCache()
	setJSON(t, cache, domain.KeyUserData, castline.Document{"email": "me@x.com", "membershipType": "free"})
	setJSON(t, cache, domain.KeyUserProfileFree, profileDoc("me@x.com", "Stale", "me.jpg", "free", castline.Document{"draftNote": "keep"}))

	newTestConsolidation(store, cache, nil).RebuildAggregate(context.Background())

	slot := cachedDocument(t, cache, domain.KeyUserProfileFree)
	if slot.String("name") != "Edited Elsewhere" {
		t.Fatalf("expected remote edit in own slot, got %q", slot.String("name"))
	}
	if slot.String("draftNote") != "keep" {
		t.Fatalf("expected unknown slot fields to survive the resync")
	}
}

func TestRebuildAggregateMergesConcurrentWrite(t *testing.T) {
	store := newFakeStore()
	store.put(domain.CollectionFree, "a", profileDoc("a@x.com", "A", "a.jpg", "free", nil))
	cache := newFakeCache()
	uc := newTestConsolidation(store, cache, nil)

	// An entry written by another rebuild between the initial read and the
	// final write is kept.
	latest := []castline.Document{profileDoc("late@x.com", "Late", "l.jpg", "pro", nil)}
	final := newAggregate()
	p, _ := domain.DecodeProfile(profileDoc("a@x.com", "A", "a.jpg", "free", nil))
	final.offer(p)
	setJSON(t, cache, domain.KeyAllProfiles, latest)

	got := byIdentity(uc.persist(context.Background(), final.list(), map[string]bool{"a@x.com": true}))

	if _, ok := got["late@x.com"]; !ok {
		t.Fatalf("expected concurrently written entry to be merged, got %+v", got)
	}
	if _, ok := got["a@x.com"]; !ok {
		t.Fatalf("expected own result to be written")
	}
}

func TestRebuildAggregateEliteSnapshotFollowsAggregate(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	store.put(domain.CollectionPro, "me@x.com", profileDoc("me@x.com", "Me Pro", "me.jpg", "pro", nil))
	setJSON(t, cache, domain.KeyUserData, castline.Document{"email": "me@x.com", "membershipType": "elite"})
	setJSON(t, cache, domain.KeyUserProfileElite, profileDoc("me@x.com", "Me", "me.jpg", "elite", nil))
	uc := NewConsolidationUsecase(store, cache, nil, "test", fixedClock{testNow}, nopLogger())

	result := byIdentity(uc.RebuildAggregate(context.Background()))
	if result["me@x.com"].MembershipTier != domain.TierPro {
		t.Fatalf("expected the fetched pro record to stay, got %q", result["me@x.com"].MembershipTier)
	}
	if elite := cachedProfiles(t, cache, domain.KeyAllProfilesElite); len(elite) != 0 {
		t.Fatalf("elite snapshot must not disagree with the aggregate, got %+v", elite)
	}
}
