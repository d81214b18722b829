package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hearth-social/warden/automod/config"
	"github.com/hearth-social/warden/automod/engine"
	"github.com/hearth-social/warden/automod/enforce"
	"github.com/hearth-social/warden/automod/strikes"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
)

// Operator HTTP API over a running engine. Every route except the health check requires the bearer token.
type AdminServer struct {
	engine *engine.Engine
	echo   *echo.Echo
	httpd  *http.Server
	logger *slog.Logger
}

type GenericError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

func NewAdminServer(eng *engine.Engine, bind, token string, logger *slog.Logger) *AdminServer {
	e := echo.New()

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	srv := &AdminServer{
		engine: eng,
		echo:   e,
		logger: logger.With("component", "admin"),
	}
	srv.httpd = &http.Server{
		Handler:        e,
		Addr:           bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.HTTPErrorHandler = srv.errorHandler

	e.GET("/_health", srv.HandleHealthCheck)

	api := e.Group("/admin/v1", middleware.KeyAuth(func(key string, c echo.Context) (bool, error) {
		return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
	}))
	api.GET("/communities/:community/config", srv.HandleGetConfig)
	api.PUT("/communities/:community/config", srv.HandlePutConfig)
	api.POST("/communities/:community/detectors/:detector", srv.HandleToggleDetector)
	api.GET("/communities/:community/strikes/:user", srv.HandleGetStrikes)
	api.POST("/communities/:community/strikes/:user", srv.HandleAddStrike)
	api.DELETE("/communities/:community/strikes/:user", srv.HandleClearStrikes)
	api.POST("/communities/:community/enforce", srv.HandleEnforce)
	api.GET("/communities/:community/quarantine", srv.HandleListQuarantine)
	api.DELETE("/communities/:community/quarantine/:user", srv.HandleReleaseQuarantine)

	return srv
}

// Serves until ctx is cancelled, then shuts down gracefully.
func (srv *AdminServer) Run(ctx context.Context) error {
	srv.logger.Info("starting admin server", "bind", srv.httpd.Addr)
	errc := make(chan error, 1)
	go func() {
		if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("admin HTTP server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.httpd.Shutdown(shutdownCtx)
}

func (srv *AdminServer) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		srv.logger.Warn("warden-http-internal-error", "err", err)
	}
	c.JSON(code, GenericStatus{Status: "error", Daemon: "warden", Message: errorMessage})
}

func (srv *AdminServer) HandleHealthCheck(c echo.Context) error {
	return c.JSON(200, GenericStatus{Status: "ok", Daemon: "warden"})
}

func (srv *AdminServer) HandleGetConfig(c echo.Context) error {
	cfg, err := srv.engine.Configs.Get(c.Request().Context(), c.Param("community"))
	if err != nil {
		return err
	}
	return c.JSON(200, cfg)
}

// Body is a full or partial moderation document; absent keys take their defaults.
func (srv *AdminServer) HandlePutConfig(c echo.Context) error {
	ctx := c.Request().Context()
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	cfg, err := config.DecodeJSON(c.Param("community"), body)
	if err != nil {
		return c.JSON(400, GenericError{
			Error:   "InvalidConfig",
			Message: err.Error(),
		})
	}
	if err := srv.engine.Configs.Replace(ctx, cfg); err != nil {
		return err
	}
	adminActions.WithLabelValues("put_config").Inc()
	return c.JSON(200, cfg)
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (srv *AdminServer) HandleToggleDetector(c echo.Context) error {
	var req toggleRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	detector := c.Param("detector")
	cfg, err := srv.engine.Configs.Update(c.Request().Context(), c.Param("community"), func(mc *config.ModerationConfig) error {
		return config.SetEnabled(mc, detector, req.Enabled)
	})
	if errors.Is(err, config.ErrUnknownDetector) {
		return c.JSON(404, GenericError{
			Error:   "UnknownDetector",
			Message: err.Error(),
		})
	} else if err != nil {
		return c.JSON(400, GenericError{
			Error:   "InvalidConfig",
			Message: err.Error(),
		})
	}
	adminActions.WithLabelValues("toggle_detector").Inc()
	return c.JSON(200, cfg)
}

type strikeView struct {
	ID          uint      `json:"id"`
	Reason      string    `json:"reason"`
	ModeratorID string    `json:"moderator_id,omitempty"`
	StrikeCount int       `json:"strike_count"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Active      bool      `json:"active"`
}

type strikesResponse struct {
	UserID  string       `json:"user_id"`
	Active  int          `json:"active"`
	History []strikeView `json:"history"`
}

func viewStrikes(recs []strikes.StrikeRecord) []strikeView {
	out := make([]strikeView, 0, len(recs))
	for _, r := range recs {
		out = append(out, strikeView{
			ID:          r.ID,
			Reason:      r.Reason,
			ModeratorID: r.ModeratorID,
			StrikeCount: r.StrikeCount,
			CreatedAt:   r.CreatedAt,
			ExpiresAt:   r.ExpiresAt,
			Active:      r.Active,
		})
	}
	return out
}

func (srv *AdminServer) HandleGetStrikes(c echo.Context) error {
	ctx := c.Request().Context()
	community, user := c.Param("community"), c.Param("user")
	n, err := srv.engine.Strikes.GetActiveStrikes(ctx, user, community)
	if err != nil {
		return err
	}
	hist, err := srv.engine.Strikes.History(ctx, user, community)
	if err != nil {
		return err
	}
	return c.JSON(200, strikesResponse{UserID: user, Active: n, History: viewStrikes(hist)})
}

type addStrikeRequest struct {
	ModeratorID string `json:"moderator_id"`
	Reason      string `json:"reason"`
}

type actionResponse struct {
	Active  int    `json:"active,omitempty"`
	Action  string `json:"action"`
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
}

func (srv *AdminServer) HandleAddStrike(c echo.Context) error {
	var req addStrikeRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	if req.Reason == "" {
		return c.JSON(400, GenericError{Error: "BadRequest", Message: "reason is required"})
	}
	n, out, err := srv.engine.AddManualStrike(c.Request().Context(), c.Param("community"), c.Param("user"), req.ModeratorID, req.Reason)
	if err != nil {
		return err
	}
	adminActions.WithLabelValues("add_strike").Inc()
	resp := actionResponse{Active: n, Action: string(out.Action), Applied: out.Applied}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	return c.JSON(200, resp)
}

func (srv *AdminServer) HandleClearStrikes(c echo.Context) error {
	n, err := srv.engine.Strikes.Clear(c.Request().Context(), c.Param("user"), c.Param("community"))
	if err != nil {
		return err
	}
	adminActions.WithLabelValues("clear_strikes").Inc()
	return c.JSON(200, map[string]int{"cleared": n})
}

type enforceRequest struct {
	UserID            string `json:"user_id"`
	ChannelID         string `json:"channel_id"`
	MessageID         string `json:"message_id"`
	Action            string `json:"action"`
	DurationSeconds   int    `json:"duration_seconds"`
	DeleteHistoryDays int    `json:"delete_history_days"`
	Reason            string `json:"reason"`
	ModeratorID       string `json:"moderator_id"`
	Notify            bool   `json:"notify"`
}

func (srv *AdminServer) HandleEnforce(c echo.Context) error {
	ctx := c.Request().Context()
	var req enforceRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	action, ok := enforce.ParseAction(req.Action)
	if !ok || req.UserID == "" {
		return c.JSON(400, GenericError{Error: "BadRequest", Message: "user_id and a valid action are required"})
	}
	community := c.Param("community")
	if req.MessageID != "" && req.ChannelID != "" {
		if err := srv.engine.Executor.DeleteMessage(ctx, req.ChannelID, req.MessageID); err != nil {
			srv.logger.Warn("failed to delete message for manual action", "err", err)
		}
	}
	out := srv.engine.Enforce(ctx, enforce.Request{
		CommunityID:       community,
		UserID:            req.UserID,
		ChannelID:         req.ChannelID,
		MessageID:         req.MessageID,
		Action:            action,
		Duration:          time.Duration(req.DurationSeconds) * time.Second,
		DeleteHistoryDays: req.DeleteHistoryDays,
		Reason:            req.Reason,
		ModeratorID:       req.ModeratorID,
		Notify:            req.Notify,
	})
	adminActions.WithLabelValues("enforce").Inc()
	resp := actionResponse{Action: string(out.Action), Applied: out.Applied}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	return c.JSON(200, resp)
}

func (srv *AdminServer) HandleListQuarantine(c echo.Context) error {
	return c.JSON(200, srv.engine.Quarantine.Pending(c.Param("community")))
}

func (srv *AdminServer) HandleReleaseQuarantine(c echo.Context) error {
	ok, err := srv.engine.Quarantine.Remove(c.Request().Context(), c.Param("community"), c.Param("user"))
	if err != nil {
		return err
	}
	if !ok {
		return c.JSON(404, GenericError{Error: "NotQuarantined", Message: "member is not in quarantine"})
	}
	adminActions.WithLabelValues("release_quarantine").Inc()
	return c.JSON(200, map[string]bool{"released": true})
}

func decodeBody(c echo.Context, v any) error {
	if err := json.NewDecoder(c.Request().Body).Decode(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}
