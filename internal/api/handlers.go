package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/flowlisa/internal/model"
	"github.com/sells-group/flowlisa/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: msg})
}

// storeError maps a store failure onto a response.
func storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "run not found")
		return
	}
	zap.L().Error("api: store query failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "internal error")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Status: model.RunStatus(q.Get("status"))}

	var err error
	if filter.Limit, err = intParam(q.Get("limit"), 0); err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		storeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	render.JSON(w, r, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		storeError(w, r, err)
		return
	}
	render.JSON(w, r, run)
}

func (s *Server) handleSensitivity(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := s.store.GetRun(r.Context(), runID); err != nil {
		storeError(w, r, err)
		return
	}
	recs, err := s.store.GetSensitivity(r.Context(), runID)
	if err != nil {
		storeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []model.SensitivityRecord{}
	}
	render.JSON(w, r, recs)
}

func (s *Server) handleFlows(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	q := r.URL.Query()

	period := q.Get("period")
	if period == "" {
		writeError(w, r, http.StatusBadRequest, "period is required")
		return
	}
	k, err := intParam(q.Get("k"), -1)
	if err != nil || k < 1 {
		writeError(w, r, http.StatusBadRequest, "k must be a positive integer")
		return
	}

	if _, err := s.store.GetRun(r.Context(), runID); err != nil {
		storeError(w, r, err)
		return
	}
	flows, err := s.store.GetFlowResults(r.Context(), runID, period, k)
	if err != nil {
		storeError(w, r, err)
		return
	}
	if flows == nil {
		flows = []model.FlowResult{}
	}
	render.JSON(w, r, flows)
}

// handleUnits returns the run's unit centroids as a GeoJSON FeatureCollection.
func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := s.store.GetRun(r.Context(), runID); err != nil {
		storeError(w, r, err)
		return
	}
	units, err := s.store.GetUnits(r.Context(), runID)
	if err != nil {
		storeError(w, r, err)
		return
	}

	fc := geojson.NewFeatureCollection()
	for _, u := range units {
		f := geojson.NewFeature(orb.Point{u.X, u.Y})
		f.ID = u.ID
		f.Properties["id"] = u.ID
		if u.Code != "" {
			f.Properties["code"] = u.Code
		}
		if u.Name != "" {
			f.Properties["name"] = u.Name
		}
		fc.Append(f)
	}

	w.Header().Set("Content-Type", "application/geo+json")
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		zap.L().Warn("api: encode units", zap.Error(err))
	}
}

// intParam parses an optional non-negative integer query value.
func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
