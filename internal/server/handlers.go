package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"

	"research-assistant/internal/helper"
	"research-assistant/internal/models"
	"research-assistant/internal/session"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type pageData struct {
	View        session.View
	Message     string
	MaxUploadMB int

	Summary    template.HTML
	Questions  template.HTML
	Answer     template.HTML
	Evaluation template.HTML

	HasCitation     bool
	CitationPage    string
	CitationExcerpt string
	PageNote        string
}

func (s *Server) index(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return s.render(c, http.StatusOK, sess.View(), "")
}

func (s *Server) upload(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	var (
		filename string
		data     []byte
	)
	fh, err := c.FormFile("document")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		if fh.Size > s.cfg.MaxUploadBytes() {
			return s.render(c, http.StatusRequestEntityTooLarge, sess.View(), s.tooLargeMessage())
		}
		filename = fh.Filename
		if data, err = readUpload(fh); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	err = sess.Upload(detach(c), c.FormValue("api_key"), filename, data)
	return s.render(c, statusFor(err), sess.View(), "")
}

func (s *Server) selectMode(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	err = sess.SelectMode(detach(c), session.Mode(c.FormValue("mode")))
	return s.render(c, statusFor(err), sess.View(), "")
}

func (s *Server) ask(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	_, err = sess.Ask(detach(c), c.FormValue("query"))
	return s.render(c, statusFor(err), sess.View(), "")
}

func (s *Server) submitAnswers(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	_, err = sess.SubmitAnswers(detach(c), c.FormValue("a1"), c.FormValue("a2"), c.FormValue("a3"))
	return s.render(c, statusFor(err), sess.View(), "")
}

// render writes the page; message overrides the session's own message
func (s *Server) render(c echo.Context, code int, v session.View, message string) error {
	data := pageData{
		View:        v,
		Message:     v.Message,
		MaxUploadMB: s.cfg.Server.MaxUploadMB,
		Summary:     markdown(v.Summary),
		Questions:   markdown(v.Questions),
		Evaluation:  markdown(v.Evaluation),
	}
	if message != "" {
		data.Message = message
	}
	if v.Answer != nil {
		data.Answer = markdown(v.Answer.Content)
	}
	if top, ok := v.Citation(); ok {
		data.HasCitation = true
		data.CitationPage = top.Segment.PageLabel()
		data.CitationExcerpt = top.Segment.Text
		data.PageNote = models.PageNote
	}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return s.page.Execute(c.Response(), data)
}

func markdown(text string) template.HTML {
	if text == "" {
		return ""
	}
	out, err := helper.RenderMarkdown(text)
	if err != nil {
		log.Warn().Err(err).Msg("Falling back to plain text")
		return template.HTML(template.HTMLEscapeString(text))
	}
	return out
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %v", err)
	}
	return data, nil
}

// detach keeps provider calls running when the browser goes away; each call
// still has its own timeout
func detach(c echo.Context) context.Context {
	return context.WithoutCancel(c.Request().Context())
}

// statusFor maps error kinds to response codes; the page is rendered either way
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, models.ErrMissingCredential),
		errors.Is(err, models.ErrUnsupportedFormat),
		errors.Is(err, models.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrLoad):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrEmbeddingProvider),
		errors.Is(err, models.ErrGenerationProvider),
		errors.Is(err, models.ErrEmptyResponse),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
