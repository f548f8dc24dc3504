// Package server exposes the controller over a local HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/offlinefirst/tinymacro/internal/buildinfo"
	"github.com/offlinefirst/tinymacro/pkg/control"
	"github.com/offlinefirst/tinymacro/pkg/library"
	"github.com/offlinefirst/tinymacro/pkg/macro"
	"github.com/offlinefirst/tinymacro/pkg/macrofile"
	"github.com/offlinefirst/tinymacro/pkg/metrics"
)

const maxMacroBytes = 16 << 20

// Controller is the subset of control.Controller the API drives.
type Controller interface {
	StartRecording() error
	StopRecording() macro.Macro
	Play(ctx context.Context, opts control.PlayOptions) error
	StopPlayback()
	Macro() macro.Macro
	SetMacro(m macro.Macro) error
	Decode(data []byte) (macro.Macro, error)
	State() string
	Status() string
	Timeline() []control.TimelineEntry
	LastResult() control.PlaybackResult
}

// Favorites is the subset of library.Library the API drives.
type Favorites interface {
	List() ([]library.Entry, error)
	Get(name string) (macro.Macro, error)
	Put(name string, m macro.Macro) error
	Delete(name string) error
}

// Deps wires the router to the rest of the program.
type Deps struct {
	Controller Controller
	Favorites  Favorites
	Logger     *slog.Logger
	// PlayDefaults supplies settings for fields a playback request omits.
	PlayDefaults func() control.PlayOptions
	// BaseContext bounds playback started over the API. Request contexts
	// end with the response, so they cannot be used.
	BaseContext context.Context
	// AllowRemote disables the loopback-only guard.
	AllowRemote bool
}

type playbackRequest struct {
	Speed  *float64 `json:"speed"`
	Loops  *int     `json:"loops"`
	Jitter *int     `json:"jitter"`
}

type statusResponse struct {
	State      string                 `json:"state"`
	Status     string                 `json:"status"`
	Events     int                    `json:"events"`
	Duration   float64                `json:"duration"`
	ByKind     map[macro.Kind]int     `json:"by_kind"`
	LastResult control.PlaybackResult `json:"last_result"`
}

type decodeErrorResponse struct {
	Error string `json:"error"`
	Index int    `json:"index"`
	Field string `json:"field,omitempty"`
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	baseCtx := deps.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	playDefaults := deps.PlayDefaults
	if playDefaults == nil {
		playDefaults = control.DefaultPlayOptions
	}
	ctrl := deps.Controller

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))
	if !deps.AllowRemote {
		r.Use(loopbackOnly(logger))
	}

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, buildinfo.Get())
	})

	// ---------------- STATE ----------------

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		summary := ctrl.Macro().Summarize()
		writeJSON(w, http.StatusOK, statusResponse{
			State:      ctrl.State(),
			Status:     ctrl.Status(),
			Events:     summary.Total,
			Duration:   summary.Duration,
			ByKind:     summary.ByKind,
			LastResult: ctrl.LastResult(),
		})
	})

	r.Get("/timeline", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"timeline": ctrl.Timeline()})
	})

	// ---------------- RECORDING ----------------

	r.Post("/recording/start", func(w http.ResponseWriter, r *http.Request) {
		if err := ctrl.StartRecording(); err != nil {
			writeControlError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"state": ctrl.State(), "status": ctrl.Status()})
	})

	r.Post("/recording/stop", func(w http.ResponseWriter, r *http.Request) {
		m := ctrl.StopRecording()
		writeJSON(w, http.StatusOK, map[string]any{"state": ctrl.State(), "events": m.Len(), "status": ctrl.Status()})
	})

	// ---------------- PLAYBACK ----------------

	r.Post("/playback", func(w http.ResponseWriter, r *http.Request) {
		req, err := decodePlaybackRequest(r)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		opts := playDefaults()
		if req.Speed != nil {
			opts.Speed = *req.Speed
		}
		if req.Loops != nil {
			opts.Loops = *req.Loops
		}
		if req.Jitter != nil {
			opts.JitterPixels = *req.Jitter
		}
		opts = opts.Normalize()

		if err := ctrl.Play(baseCtx, opts); err != nil {
			writeControlError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"state": ctrl.State(), "options": opts})
	})

	r.Post("/playback/stop", func(w http.ResponseWriter, r *http.Request) {
		ctrl.StopPlayback()
		writeJSON(w, http.StatusAccepted, map[string]string{"state": ctrl.State(), "status": ctrl.Status()})
	})

	// ---------------- MACRO ----------------

	r.Get("/macro", func(w http.ResponseWriter, r *http.Request) {
		data, err := macrofile.Encode(ctrl.Macro())
		if err != nil {
			logger.Error("encode macro failed", "error", err)
			http.Error(w, "failed to encode macro", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})

	r.Put("/macro", func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMacroBytes))
		if err != nil {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		m, err := ctrl.Decode(data)
		if err != nil {
			writeControlError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"events": m.Len()})
	})

	// ---------------- FAVORITES ----------------

	if deps.Favorites != nil {
		favs := deps.Favorites
		r.Route("/favorites", func(fr chi.Router) {
			fr.Get("/", func(w http.ResponseWriter, r *http.Request) {
				entries, err := favs.List()
				if err != nil {
					writeControlError(w, logger, err)
					return
				}
				if entries == nil {
					entries = []library.Entry{}
				}
				writeJSON(w, http.StatusOK, map[string]any{"favorites": entries})
			})

			fr.Put("/{name}", func(w http.ResponseWriter, r *http.Request) {
				name := chi.URLParam(r, "name")
				m := ctrl.Macro()
				if err := favs.Put(name, m); err != nil {
					writeControlError(w, logger, err)
					return
				}
				logger.Info("favorite saved via API", "name", name, "events", m.Len())
				writeJSON(w, http.StatusOK, map[string]any{"name": strings.TrimSpace(name), "events": m.Len()})
			})

			fr.Post("/{name}/load", func(w http.ResponseWriter, r *http.Request) {
				name := chi.URLParam(r, "name")
				m, err := favs.Get(name)
				if err != nil {
					writeControlError(w, logger, err)
					return
				}
				if err := ctrl.SetMacro(m); err != nil {
					writeControlError(w, logger, err)
					return
				}
				status := http.StatusOK
				if r.URL.Query().Get("play") == "true" {
					if err := ctrl.Play(baseCtx, playDefaults().Normalize()); err != nil {
						writeControlError(w, logger, err)
						return
					}
					status = http.StatusAccepted
				}
				writeJSON(w, status, map[string]any{"name": strings.TrimSpace(name), "events": m.Len(), "state": ctrl.State()})
			})

			fr.Delete("/{name}", func(w http.ResponseWriter, r *http.Request) {
				if err := favs.Delete(chi.URLParam(r, "name")); err != nil {
					writeControlError(w, logger, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})
		})
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeControlError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var decodeErr *macrofile.DecodeError
	switch {
	case errors.As(err, &decodeErr):
		writeJSON(w, http.StatusBadRequest, decodeErrorResponse{Error: err.Error(), Index: decodeErr.Index, Field: decodeErr.Field})
	case errors.Is(err, macrofile.ErrInvalidDocument), errors.Is(err, macrofile.ErrUnsupportedVersion):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, control.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, control.ErrNothingToPlay), errors.Is(err, control.ErrEmptyMacro):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, library.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, library.ErrInvalidName):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func decodePlaybackRequest(r *http.Request) (playbackRequest, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return playbackRequest{}, nil
	}

	var req playbackRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return playbackRequest{}, nil
		}
		return playbackRequest{}, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return playbackRequest{}, errors.New("request body must contain exactly one JSON object")
	}
	return req, nil
}
