package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/minios-linux/jsonloc/backend"
	"github.com/minios-linux/jsonloc/jsondoc"
	"github.com/minios-linux/jsonloc/ratelimit"
	"github.com/minios-linux/jsonloc/translate"
)

type translateRequest struct {
	Document   json.RawMessage `json:"document"`
	TargetLang string          `json:"target_lang"`
	SourceLang string          `json:"source_lang,omitempty"`
	Strategy   string          `json:"strategy,omitempty"`
}

type extractRequest struct {
	Document json.RawMessage `json:"document"`
}

type applyError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type translateResponse struct {
	Document    json.RawMessage     `json:"document"`
	SourceLang  string              `json:"source_lang,omitempty"`
	TargetLang  string              `json:"target_lang"`
	Outcomes    []translate.Outcome `json:"outcomes"`
	ApplyErrors []applyError        `json:"apply_errors"`
	Stats       translate.Stats     `json:"stats"`
}

type providerEntry struct {
	backend.ProviderInfo
	Limits ratelimit.Config `json:"limits"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service":  "jsonloc",
		"provider": s.backend.Info().ID,
		"time":     time.Now().UTC(),
	})
}

func (s *Server) handleProviders(c echo.Context) error {
	provs := backend.DefaultProviders()
	out := make([]providerEntry, 0, len(provs))
	for _, id := range backend.ProviderIDs() {
		p := provs[id]
		out = append(out, providerEntry{
			ProviderInfo: backend.ProviderInfo{
				ID:      p.ID,
				Name:    p.Name,
				BaseURL: p.BaseURL,
				Model:   p.DefaultModel,
				Format:  p.Format,
			},
			Limits: ratelimit.DefaultsFor(p.ID),
		})
	}
	return success(c, out)
}

func (s *Server) handleExtract(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "Failed to read body")
	}
	var req extractRequest
	if err := validate(s.schemas.extract, raw, &req); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	_, leaves, err := jsondoc.Load(req.Document)
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	return success(c, map[string]any{"leaves": leaves})
}

func (s *Server) handleTranslate(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "Failed to read body")
	}
	var req translateRequest
	if err := validate(s.schemas.translate, raw, &req); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	strategy := s.opts.Settings.Strategy
	if req.Strategy != "" {
		if strategy, err = translate.ParseStrategy(req.Strategy); err != nil {
			return fail(c, http.StatusBadRequest, err.Error())
		}
	}

	doc, leaves, err := jsondoc.Load(req.Document)
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	log := s.log.WithFields(logrus.Fields{
		"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
		"target":     req.TargetLang,
	})

	sourceLang := strings.TrimSpace(req.SourceLang)
	if strings.EqualFold(sourceLang, "auto") {
		sourceLang = ""
	}
	if sourceLang == "" && s.opts.Detector != nil {
		texts := make([]string, len(leaves))
		for i, l := range leaves {
			texts[i] = l.Value
		}
		if code, ok := s.opts.Detector.Detect(texts); ok {
			sourceLang = code
			log.WithField("source", code).Debug("detected source language")
		}
	}

	orch, err := translate.New(translate.Options{
		Backend:      s.backend,
		SourceLang:   sourceLang,
		TargetLang:   req.TargetLang,
		Strategy:     strategy,
		Governor:     s.gov,
		RequestDelay: s.opts.Settings.RequestDelay,
		Logger:       log,
		Metrics:      s.metrics,
		Tracer:       s.opts.Tracer,
	})
	if errors.Is(err, translate.ErrBatchingUnsupported) {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	if err != nil {
		log.WithError(err).Error("building orchestrator failed")
		return internalError(c, "Failed to start translation")
	}

	res, err := orch.TranslateDocument(c.Request().Context(), doc)
	if err != nil {
		if errors.Is(err, jsondoc.ErrNoTranslatableLeaves) {
			return fail(c, http.StatusBadRequest, err.Error())
		}
		log.WithError(err).Error("translation failed")
		return internalError(c, "Translation failed")
	}

	body, err := jsondoc.Marshal(res.Document, "")
	if err != nil {
		log.WithError(err).Error("encoding document failed")
		return internalError(c, "Failed to encode document")
	}

	applyErrs := make([]applyError, len(res.ApplyErrors))
	for i, ae := range res.ApplyErrors {
		applyErrs[i] = applyError{Path: ae.Path, Error: ae.Err.Error()}
	}
	return success(c, translateResponse{
		Document:    body,
		SourceLang:  sourceLang,
		TargetLang:  req.TargetLang,
		Outcomes:    res.Outcomes,
		ApplyErrors: applyErrs,
		Stats:       res.Stats,
	})
}
