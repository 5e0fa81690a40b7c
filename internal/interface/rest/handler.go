package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/totegamma/castline"
	"github.com/totegamma/castline/internal/domain"
	"github.com/totegamma/castline/internal/interface/rest/presenter"
	"github.com/totegamma/castline/internal/usecase"
)

// Subscriber streams aggregate change events.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan castline.Event, func() error)
}

type Handler struct {
	profile       *usecase.ProfileUsecase
	consolidation *usecase.ConsolidationUsecase
	backup        *usecase.BackupUsecase
	session       *usecase.SessionUsecase
	browse        *usecase.BrowseUsecase
	signals       Subscriber
	channel       string
	logger        zerolog.Logger
}

func NewHandler(
	profile *usecase.ProfileUsecase,
	consolidation *usecase.ConsolidationUsecase,
	backup *usecase.BackupUsecase,
	session *usecase.SessionUsecase,
	browse *usecase.BrowseUsecase,
	signals Subscriber,
	channel string,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		profile:       profile,
		consolidation: consolidation,
		backup:        backup,
		session:       session,
		browse:        browse,
		signals:       signals,
		channel:       channel,
		logger:        logger.With().Str("module", "rest").Logger(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api/v1")
	api.GET("/health", h.handleHealth)
	api.PUT("/profile/:tier", h.handleSaveProfile)
	api.GET("/profiles", h.handleList)
	api.GET("/profiles/elite", h.handleElite)
	api.POST("/profiles/rebuild", h.handleRebuild)
	api.POST("/backup", h.handleBackup)
	api.POST("/restore", h.handleRestore)
	api.GET("/session", h.handleSession)
	if h.signals != nil {
		api.GET("/events", h.handleEvents)
	}
}

func (h *Handler) handleHealth(c echo.Context) error {
	return presenter.OK(c, echo.Map{"status": "ok"})
}

type saveProfileRequest struct {
	Fields            castline.Document `json:"fields"`
	ActivateHighlight bool              `json:"activateHighlight"`
	HighlightDays     int               `json:"highlightDays"`
}

func (h *Handler) handleSaveProfile(c echo.Context) error {
	ctx := c.Request().Context()

	tier := domain.ParseTier(c.Param("tier"))
	if tier == domain.TierUnknown {
		return presenter.BadRequestMessage(c, "unknown tier")
	}

	var req saveProfileRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequest(c, err)
	}

	profile, err := h.profile.SaveOwnProfile(ctx, usecase.SaveProfileInput{
		Tier:              tier,
		Fields:            req.Fields,
		ActivateHighlight: req.ActivateHighlight,
		HighlightDays:     req.HighlightDays,
	})
	if err != nil {
		var invalid *domain.InvalidIdentityError
		var rejection *domain.ModerationRejection
		var validation *domain.ValidationError
		var persistence *domain.PersistenceError
		switch {
		case errors.As(err, &invalid):
			return presenter.InvalidField(c, invalid.Field, err)
		case errors.As(err, &rejection):
			return presenter.Rejected(c, err, rejection.Fields, rejection.Categories)
		case errors.As(err, &validation):
			return presenter.BadRequest(c, err)
		case errors.As(err, &persistence):
			h.logger.Error().Err(err).Str("stage", persistence.Stage).Msg("profile save failed")
			return presenter.StageError(c, persistence.Stage, err)
		default:
			return presenter.InternalError(c, err)
		}
	}

	return presenter.OK(c, profile)
}

func (h *Handler) handleList(c echo.Context) error {
	ctx := c.Request().Context()

	filter := usecase.Filter{Category: c.QueryParam("category")}
	if raw := c.QueryParam("tier"); raw != "" {
		filter.Tier = domain.ParseTier(raw)
		if filter.Tier == domain.TierUnknown {
			return presenter.BadRequestMessage(c, "unknown tier")
		}
	}
	if raw := c.QueryParam("kind"); raw != "" {
		filter.Kind = domain.ParseKind(raw)
		if filter.Kind == domain.KindUnknown {
			return presenter.BadRequestMessage(c, "unknown kind")
		}
	}
	if raw := c.QueryParam("highlighted"); raw != "" {
		highlighted, err := strconv.ParseBool(raw)
		if err != nil {
			return presenter.BadRequestMessage(c, "highlighted must be a boolean")
		}
		filter.HighlightedOnly = highlighted
	}

	profiles, err := h.browse.List(ctx, filter)
	if err != nil {
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, profiles)
}

func (h *Handler) handleElite(c echo.Context) error {
	profiles, err := h.browse.Elite(c.Request().Context())
	if err != nil {
		return presenter.InternalError(c, err)
	}
	return presenter.OK(c, profiles)
}

func (h *Handler) handleRebuild(c echo.Context) error {
	profiles := h.consolidation.RebuildAggregate(c.Request().Context())
	return presenter.OK(c, echo.Map{"count": len(profiles), "profiles": profiles})
}

func (h *Handler) handleBackup(c echo.Context) error {
	if !h.backup.Backup(c.Request().Context()) {
		return presenter.Unavailable(c, "backup failed")
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleRestore(c echo.Context) error {
	if !h.backup.Restore(c.Request().Context()) {
		return presenter.Unavailable(c, "no usable backup")
	}
	return presenter.OK(c, echo.Map{"status": "ok"})
}

func (h *Handler) handleSession(c echo.Context) error {
	session, err := h.session.Resolve(c.Request().Context())
	if err != nil {
		h.logger.Error().Err(err).Str("state", string(session.State)).Msg("session resolve failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error(), "state": session.State})
	}
	return presenter.OK(c, session)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (h *Handler) handleEvents(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	events, closeSub := h.signals.Subscribe(ctx, h.channel)
	defer closeSub()

	// The client never sends anything meaningful; reading only detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) &&
					(closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway) {
					return
				}
				h.logger.Debug().Err(err).Msg("websocket read ended")
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := ws.WriteJSON(event); err != nil {
				h.logger.Error().Err(err).Msg("websocket write failed")
				return nil
			}
		}
	}
}
