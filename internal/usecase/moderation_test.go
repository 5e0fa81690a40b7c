package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/totegamma/castline/internal/domain"
)

type mockModerator struct {
	verdicts map[string]ModerationVerdict
	err      error
	seen     []string
}

func (m *mockModerator) Moderate(ctx context.Context, mediaURL string) (ModerationVerdict, error) {
	m.seen = append(m.seen, mediaURL)
	if m.err != nil {
		return ModerationVerdict{}, m.err
	}
	if v, ok := m.verdicts[mediaURL]; ok {
		return v, nil
	}
	return ModerationVerdict{Accepted: true}, nil
}

func moderatedProfile() domain.Profile {
	return domain.Profile{
		Identity:     "a@x.com",
		MediaPrimary: "face.jpg",
		MediaGallery: []string{"one.jpg", "two.jpg"},
		EliteFields:  &domain.EliteFields{CompanyLogos: []string{"logo.png"}},
	}
}

func TestModerationAcceptsCleanMedia(t *testing.T) {
	moderator := &mockModerator{}
	uc := NewModerationUsecase(moderator, nopLogger())

	if err := uc.Screen(context.Background(), moderatedProfile()); err != nil {
		t.Fatalf("expected clean media to pass, got %v", err)
	}
	if len(moderator.seen) != 4 {
		t.Fatalf("expected every media reference screened, got %v", moderator.seen)
	}
}

func TestModerationCollectsRejections(t *testing.T) {
	moderator := &mockModerator{verdicts: map[string]ModerationVerdict{
		"one.jpg":  {Accepted: false, Categories: []string{"nudity"}},
		"two.jpg":  {Accepted: false, Categories: []string{"nudity", "violence"}},
		"logo.png": {Accepted: false, Categories: []string{"spam"}},
	}}
	uc := NewModerationUsecase(moderator, nopLogger())

	err := uc.Screen(context.Background(), moderatedProfile())

	var rejection *domain.ModerationRejection
	if !errors.As(err, &rejection) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if len(rejection.Fields) != 2 || rejection.Fields[0] != "bookPhotos" || rejection.Fields[1] != "companyLogos" {
		t.Fatalf("unexpected fields %v", rejection.Fields)
	}
	if len(rejection.Categories) != 3 {
		t.Fatalf("expected deduplicated categories, got %v", rejection.Categories)
	}
}

func TestModerationFailsOpen(t *testing.T) {
	uc := NewModerationUsecase(&mockModerator{err: errors.New("connection refused")}, nopLogger())

	if err := uc.Screen(context.Background(), moderatedProfile()); err != nil {
		t.Fatalf("expected unreachable classifier to let media through, got %v", err)
	}
}
