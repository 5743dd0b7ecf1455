package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"research-assistant/internal/config"
	"research-assistant/internal/session"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

//go:embed templates/index.html
var templates embed.FS

const cookieName = "ra_session"

// Server is the browser front end: one page, one session per cookie
type Server struct {
	cfg   *config.Config
	store *Store
	echo  *echo.Echo
	page  *template.Template
}

func New(cfg *config.Config, factory session.ProviderFactory) (*Server, error) {
	page, err := template.ParseFS(templates, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %v", err)
	}

	s := &Server{
		cfg:   cfg,
		store: NewStore(cfg, factory),
		echo:  echo.New(),
		page:  page,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("Request")
			return nil
		},
	}))
	// room for the multipart envelope and the other form fields
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", s.cfg.Server.MaxUploadMB+1)))

	e.GET("/", s.index)
	e.POST("/upload", s.upload)
	e.POST("/mode", s.selectMode)
	e.POST("/ask", s.ask)
	e.POST("/answers", s.submitAnswers)
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	log.Info().Str("address", addr).Msg("Starting web server")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// handleError renders router level failures: oversized bodies get the page
// with a message, everything else a plain status text
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	log.Warn().Err(err).Int("status", code).Str("uri", c.Request().RequestURI).Msg("Request failed")

	if code == http.StatusRequestEntityTooLarge {
		if sess, rerr := s.session(c); rerr == nil {
			if rerr = s.render(c, code, sess.View(), s.tooLargeMessage()); rerr == nil {
				return
			}
		}
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.String(code, msg)
}

func (s *Server) tooLargeMessage() string {
	return fmt.Sprintf("The file is larger than the %d MB upload limit.", s.cfg.Server.MaxUploadMB)
}

// session resolves the cookie to a session, issuing a new cookie when needed
func (s *Server) session(c echo.Context) (*session.Session, error) {
	var id string
	if cookie, err := c.Cookie(cookieName); err == nil {
		id = cookie.Value
	}

	sess, newID, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if newID != id {
		c.SetCookie(&http.Cookie{
			Name:     cookieName,
			Value:    newID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(s.cfg.Server.SessionTTL.Seconds()),
		})
	}
	return sess, nil
}
