package usecase

import (
	"context"
	"slices"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/totegamma/castline/internal/domain"
)

var moderationTracer = otel.Tracer("moderation")

type ModerationUsecase struct {
	moderator Moderator
	logger    zerolog.Logger
}

func NewModerationUsecase(moderator Moderator, logger zerolog.Logger) *ModerationUsecase {
	return &ModerationUsecase{
		moderator: moderator,
		logger:    logger.With().Str("component", "moderation").Logger(),
	}
}

// Screen runs every media reference of p through the classifier. When the
// classifier is unreachable the media is let through and the failure logged.
func (uc *ModerationUsecase) Screen(ctx context.Context, p domain.Profile) error {
	ctx, span := moderationTracer.Start(ctx, "Moderation.Usecase.Screen")
	defer span.End()

	media := []struct {
		field string
		urls  []string
	}{
		{"profilePhoto", []string{p.MediaPrimary}},
		{"bookPhotos", p.MediaGallery},
		{"companyLogos", p.Logos()},
	}

	rejection := &domain.ModerationRejection{}
	for _, m := range media {
		for _, url := range m.urls {
			if url == "" {
				continue
			}
			verdict, err := uc.moderator.Moderate(ctx, url)
			if err != nil {
				uc.logger.Warn().Err(err).Str("field", m.field).Msg("moderation unavailable, accepting media")
				span.RecordError(err)
				continue
			}
			if verdict.Accepted {
				continue
			}
			if !slices.Contains(rejection.Fields, m.field) {
				rejection.Fields = append(rejection.Fields, m.field)
			}
			for _, c := range verdict.Categories {
				if !slices.Contains(rejection.Categories, c) {
					rejection.Categories = append(rejection.Categories, c)
				}
			}
		}
	}

	if len(rejection.Fields) > 0 {
		return rejection
	}
	return nil
}
