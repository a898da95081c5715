package winddown

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterHTTP mounts the service's HTTP surface on r. The event endpoints
// are how an external tab watcher (or the browser bridge) feeds navigation
// and tab lifecycle into the engine; the rest is the query and control
// surface used by overlays and tooling.
func RegisterHTTP(r chi.Router, s *Service) {
	eng := s.Engine()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/settings", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, eng.Settings())
		})
		r.Put("/settings", func(w http.ResponseWriter, req *http.Request) {
			var in Settings
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if err := eng.UpdateSettings(req.Context(), in); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, eng.Settings())
		})

		r.Get("/timers", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, eng.ListTimers())
		})
		r.Get("/timers/{tabID}", func(w http.ResponseWriter, req *http.Request) {
			tabID, ok := tabParam(w, req)
			if !ok {
				return
			}
			st, found := eng.Status(tabID)
			if !found {
				writeError(w, http.StatusNotFound, ErrNoTimer)
				return
			}
			writeJSON(w, http.StatusOK, st)
		})
		r.Post("/timers/{tabID}/snooze", func(w http.ResponseWriter, req *http.Request) {
			tabID, ok := tabParam(w, req)
			if !ok {
				return
			}
			if err := eng.SnoozeTimer(req.Context(), tabID); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			st, _ := eng.Status(tabID)
			writeJSON(w, http.StatusOK, st)
		})
		r.Post("/timers/{tabID}/dismiss", func(w http.ResponseWriter, req *http.Request) {
			tabID, ok := tabParam(w, req)
			if !ok {
				return
			}
			if err := eng.DismissTimer(req.Context(), tabID); err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"dismissed": true})
		})

		r.Get("/badge", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, eng.CurrentBadge())
		})
		r.Get("/events", func(w http.ResponseWriter, req *http.Request) {
			limit := 50
			if v := req.URL.Query().Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n <= 0 {
					writeError(w, http.StatusBadRequest, errors.New("bad limit"))
					return
				}
				limit = n
			}
			events, err := s.Store().Recent(req.Context(), limit)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, events)
		})

		r.Post("/events/navigation", func(w http.ResponseWriter, req *http.Request) {
			var in struct {
				TabID int    `json:"tab_id"`
				URL   string `json:"url"`
			}
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			eng.HandleNavigation(req.Context(), in.TabID, in.URL)
			writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
		})
		r.Post("/events/removed", func(w http.ResponseWriter, req *http.Request) {
			var in struct {
				TabID int `json:"tab_id"`
			}
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			eng.HandleTabRemoved(req.Context(), in.TabID)
			writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
		})
		r.Post("/events/activated", func(w http.ResponseWriter, req *http.Request) {
			var in struct {
				TabID int `json:"tab_id"`
			}
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			eng.HandleTabActivated(req.Context(), in.TabID)
			writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
		})
		r.Post("/events/focus", func(w http.ResponseWriter, req *http.Request) {
			var in struct {
				Focused bool `json:"focused"`
			}
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			eng.HandleFocusChanged(req.Context(), in.Focused)
			writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
		})
	})
}

func tabParam(w http.ResponseWriter, req *http.Request) (int, bool) {
	tabID, err := strconv.Atoi(chi.URLParam(req, "tabID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("bad tab id"))
		return 0, false
	}
	return tabID, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoTimer):
		return http.StatusNotFound
	case errors.Is(err, ErrTimerExists), errors.Is(err, ErrPaused):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
