// Package api provides HTTP handlers for the viewer engine server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/TissueMAPS/TissueMAPS-sub004/internal/cache"
	"github.com/TissueMAPS/TissueMAPS-sub004/internal/jobs"
	"github.com/TissueMAPS/TissueMAPS-sub004/internal/render"
	"github.com/TissueMAPS/TissueMAPS-sub004/internal/state"
	"github.com/TissueMAPS/TissueMAPS-sub004/internal/tools"
	"github.com/TissueMAPS/TissueMAPS-sub004/internal/toolstore"
	"github.com/TissueMAPS/TissueMAPS-sub004/internal/viewer"
	"github.com/TissueMAPS/TissueMAPS-sub004/pkg/color"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry    *ViewerRegistry
	CORSOrigins []string
	Catalog     *tools.Catalog
	Renderer    *render.TileRenderer
	Cache       *cache.Manager
	Jobs        *jobs.Manager
	Log         *zap.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Global endpoints (not viewer-scoped)
	r.Get("/api/tools", toolsHandler(cfg.Catalog))
	r.Get("/api/cache/stats", cacheStatsHandler(cfg.Cache))
	r.Get("/api/viewers", viewersHandler(cfg.Registry))
	r.Post("/api/viewers", viewerCreateHandler(cfg.Registry))
	r.Delete("/api/viewers/{viewer_id}", viewerDeleteHandler(cfg.Registry))

	r.Route("/api/submissions", func(r chi.Router) {
		r.Get("/{submission_id}", submissionStatusHandler(cfg.Jobs))
		r.Delete("/{submission_id}", submissionCancelHandler(cfg.Jobs))
	})

	// Viewer-scoped routes: /v/{viewer}/...
	r.Route("/v/{viewer}", func(r chi.Router) {
		r.Use(viewerMiddleware(cfg.Registry))

		r.Get("/tiles/{layer_id}/{z}/{x}/{y}.png", tileHandler(cfg))

		r.Route("/api", func(r chi.Router) {
			r.Get("/info", infoHandler)

			r.Get("/layers", layersHandler)
			r.Post("/layers", layerCreateHandler(cfg.Registry))
			r.Put("/layers/{layer_id}", layerUpdateHandler(cfg.Registry))
			r.Delete("/layers/{layer_id}", layerDeleteHandler(cfg.Registry))

			r.Post("/objects/{object_type}", objectsRegisterHandler)

			r.Put("/plane", planeHandler(cfg.Registry))
			r.Get("/camera", cameraGetHandler)
			r.Put("/camera", cameraSetHandler)

			r.Get("/selections", selectionsHandler)
			r.Post("/selections", selectionCreateHandler(cfg.Registry))
			r.Post("/selections/marker-mode", markerModeHandler)
			r.Post("/selections/pick", pickHandler(cfg.Registry))
			r.Post("/selections/{object_type}/{selection_id}/activate", selectionActivateHandler)
			r.Post("/selections/{object_type}/{selection_id}/clear", selectionClearHandler(cfg.Registry))
			r.Delete("/selections/{object_type}/{selection_id}", selectionDeleteHandler(cfg.Registry))

			r.Post("/tools/{tool_id}/session", sessionCreateHandler)
			r.Delete("/tools/{tool_id}/session", sessionDiscardHandler)
			r.Post("/tools/{tool_id}/request", toolRequestHandler(cfg.Jobs))

			r.Get("/results", resultsHandler)
			r.Get("/results/{result_id}", resultHandler)
			r.Put("/results/{result_id}/visibility", resultVisibilityHandler(cfg.Registry))
			r.Delete("/results/{result_id}", resultDeleteHandler(cfg.Registry))

			r.Get("/state", stateGetHandler)
			r.Post("/state", stateRestoreHandler(cfg.Registry))
			r.Get("/state/export", stateExportHandler(cfg))
			r.Post("/state/import", stateImportHandler(cfg.Registry))
		})
	})

	return r
}

// Context key for the resolved viewer
type ctxKey string

const viewerKey ctxKey = "viewer"

// viewerMiddleware resolves the viewer from the URL and injects it into
// the request context.
func viewerMiddleware(registry *ViewerRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewerID := chi.URLParam(r, "viewer")
			v := registry.Get(viewerID)
			if v == nil {
				http.Error(w, "viewer not found: "+viewerID, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), viewerKey, v)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getViewer(r *http.Request) *viewer.Viewer {
	if v, ok := r.Context().Value(viewerKey).(*viewer.Viewer); ok {
		return v
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ---- global handlers ----

func toolsHandler(catalog *tools.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var list []tools.Tool
		if catalog != nil {
			list = catalog.Tools()
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"tools": list})
	}
}

func cacheStatsHandler(c *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c == nil {
			http.Error(w, "cache not configured", http.StatusNotImplemented)
			return
		}
		writeJSON(w, http.StatusOK, c.Stats())
	}
}

func viewersHandler(registry *ViewerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"viewers": registry.Viewers(),
		})
	}
}

type viewerCreateRequest struct {
	Experiment string `json:"experiment"`
}

func viewerCreateHandler(registry *ViewerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req viewerCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.Experiment == "" {
			http.Error(w, "experiment is required", http.StatusBadRequest)
			return
		}
		v := registry.Create(req.Experiment)
		writeJSON(w, http.StatusCreated, ViewerInfo{ID: v.ID, Experiment: v.Experiment})
	}
}

func viewerDeleteHandler(registry *ViewerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "viewer_id")
		if !registry.Delete(id) {
			http.Error(w, "viewer not found: "+id, http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func submissionStatusHandler(jm *jobs.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "submission manager not configured", http.StatusNotImplemented)
			return
		}
		id := chi.URLParam(r, "submission_id")
		sub := jm.Get(id)
		if sub == nil {
			http.Error(w, "submission not found: "+id, http.StatusNotFound)
			return
		}
		classes, err := jm.Store().QueryClasses(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"submission": sub,
			"classes":    classes,
		})
	}
}

func submissionCancelHandler(jm *jobs.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "submission manager not configured", http.StatusNotImplemented)
			return
		}
		id := chi.URLParam(r, "submission_id")
		if !jm.Cancel(id) {
			http.Error(w, "submission cannot be cancelled: "+id, http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"cancelled": true})
	}
}

// ---- viewer info ----

func infoHandler(w http.ResponseWriter, r *http.Request) {
	v := getViewer(r)
	tpoint, zplane := v.Viewport.Plane()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":          v.ID,
		"experiment":  v.Experiment,
		"layers":      len(v.Viewport.Layers()),
		"objectTypes": v.Selections.ObjectTypes(),
		"tpoint":      tpoint,
		"zplane":      zplane,
		"camera":      v.Viewport.Camera(),
	})
}

// ---- layers ----

type channelInfo struct {
	Channel      string  `json:"channel"`
	Tpoint       int     `json:"tpoint"`
	Zplane       int     `json:"zplane"`
	MinIntensity int     `json:"minIntensity"`
	MaxIntensity int     `json:"maxIntensity"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Brightness   float64 `json:"brightness"`
	Tint         string  `json:"tint"`
	Additive     bool    `json:"additive"`
}

type segmentationInfo struct {
	ObjectType string `json:"objectType"`
	Fill       string `json:"fill"`
	Stroke     string `json:"stroke"`
}

type layerInfo struct {
	ID           string            `json:"id"`
	Kind         string            `json:"kind"`
	Visible      bool              `json:"visible"`
	Opacity      float64           `json:"opacity"`
	ZIndex       int               `json:"zIndex"`
	Visuals      int               `json:"visuals"`
	Channel      *channelInfo      `json:"channel,omitempty"`
	Segmentation *segmentationInfo `json:"segmentation,omitempty"`
}

func layerToInfo(l *viewer.Layer) layerInfo {
	info := layerInfo{
		ID:      l.ID,
		Kind:    l.Kind.String(),
		Visible: l.Visible,
		Opacity: l.Opacity,
		ZIndex:  l.ZIndex,
		Visuals: l.VisualCount(),
	}
	if l.Channel != nil {
		info.Channel = &channelInfo{
			Channel:      l.Channel.Channel,
			Tpoint:       l.Channel.Tpoint,
			Zplane:       l.Channel.Zplane,
			MinIntensity: l.Channel.MinIntensity,
			MaxIntensity: l.Channel.MaxIntensity,
			Min:          l.Channel.Min,
			Max:          l.Channel.Max,
			Brightness:   l.Channel.Brightness,
			Tint:         l.Channel.Tint.ToHex(),
			Additive:     l.Channel.Additive,
		}
	}
	if l.Segmentation != nil {
		info.Segmentation = &segmentationInfo{
			ObjectType: l.Segmentation.ObjectType,
			Fill:       l.Segmentation.Fill.ToRGBAString(),
			Stroke:     l.Segmentation.Stroke.ToRGBAString(),
		}
	}
	return info
}

func layersHandler(w http.ResponseWriter, r *http.Request) {
	v := getViewer(r)
	layers := v.Viewport.Layers()
	infos := make([]layerInfo, 0, len(layers))
	for _, l := range layers {
		infos = append(infos, layerToInfo(l))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"layers": infos})
}

type layerCreateRequest struct {
	ID   string `json:"id"`
	Type string `json:"type"` // "channel" or "segmentation"

	// channel fields
	Channel      string  `json:"channel,omitempty"`
	Tpoint       int     `json:"tpoint,omitempty"`
	Zplane       int     `json:"zplane,omitempty"`
	MinIntensity int     `json:"minIntensity,omitempty"`
	MaxIntensity int     `json:"maxIntensity,omitempty"`
	Min          float64 `json:"min,omitempty"`
	Max          float64 `json:"max,omitempty"`
	Brightness   float64 `json:"brightness,omitempty"`
	Tint         string  `json:"tint,omitempty"`
	Additive     bool    `json:"additive,omitempty"`

	// segmentation fields
	ObjectType string `json:"objectType,omitempty"`
	Fill       string `json:"fill,omitempty"`
	Stroke     string `json:"stroke,omitempty"`
}

func parseColorParam(s string) (color.Color, error) {
	if s == "" {
		return color.None, nil
	}
	c := color.FromHex(s)
	if c == color.None {
		c = color.FromRGBString(s)
	}
	if c == color.None {
		return color.None, fmt.Errorf("invalid color: %q", s)
	}
	return c, nil
}

func layerCreateHandler(registry *ViewerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := getViewer(r)

		var req layerCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.ID == "" {
			http.Error(w, "id is required", http.StatusBadRequest)
			return
		}

		var l *viewer.Layer
		switch req.Type {
		case "channel":
			if req.Channel == "" {
				http.Error(w, "channel is required for channel layers", http.StatusBadRequest)
				return
			}
			// Zero min and max together means "use the default full window".
			if (req.Min != 0 || req.Max != 0) && req.Min >= req.Max {
				http.Error(w, viewer.ErrInvalidRange.Error(), http.StatusBadRequest)
				return
			}
			tint, err := parseColorParam(req.Tint)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			l = viewer.NewChannelLayer(req.ID, viewer.ChannelParams{
				Channel:      req.Channel,
				Tpoint:       req.Tpoint,
				Zplane:       req.Zplane,
				MinIntensity: req.MinIntensity,
				MaxIntensity: req.MaxIntensity,
				Min:          req.Min,
				Max:          req.Max,
				Brightness:   req.Brightness,
				Tint:         tint,
				Additive:     req.Additive,
			})
		case "segmentation":
			if req.ObjectType == "" {
				http.Error(w, "objectType is required for segmentation layers", http.StatusBadRequest)
				return
			}
			fill, err := parseColorParam(req.Fill)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			stroke, err := parseColorParam(req.Stroke)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			l = viewer.NewSegmentationLayer(req.ID, viewer.SegmentationParams{
				ObjectType: req.ObjectType,
				Fill:       fill,
				Stroke:     stroke,
			})
			// Populate outlines from the registered objects of this type.
			v.EachObject(req.ObjectType, func(obj viewer.MapObject) {
				if len(obj.Outline) > 0 {
					l.AddVisual(viewer.NewPolygonVisual(obj.ID, obj.Outline))
				} else {
					l.AddVisual(viewer.NewPointVisual(obj.ID, obj.Centroid))
				}
			})
		default:
			http.Error(w, "type must be channel or segmentation", http.StatusBadRequest)
			return
		}

		if err := v.Viewport.AddLayer(l); err != nil {
			if errors.Is(err, viewer.ErrDuplicateLayer) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		registry.Bump(v.ID)
		writeJSON(w, http.StatusCreated, layerToInfo(l))
	}
}

type layerUpdateRequest struct {
	Min        *float64 `json:"min,omitempty"`
	Max        *float64 `json:"max,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
	Tint       *string  `json:"tint,omitempty"`
	Opacity    *float64 `json:"opacity,omitempty"`
	Visible    *bool    `json:"visible,omitempty"`
	Fill       *string  `json:"fill,omitempty"`
	Stroke     *string  `json:"stroke,omitempty"`
}

func layerUpdateHandler(registry *ViewerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := getViewer(r)
		layerID := chi.URLParam(r, "layer_id")

		var req layerUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		apply := func(err error) bool {
			if err == nil {
				return true
			}
			switch {
			case errors.Is(err, viewer.ErrLayerNotFound):
				http.Error(w, err.Error(), http.StatusNotFound)
			case errors.Is(err, viewer.ErrInvalidRange):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return false
		}

		if req.Min != nil || req.Max != nil {
			if req.Min == nil || req.Max == nil {
				http.Error(w, "min and max must be set together", http.StatusBadRequest)
				return
			}
			if !apply(v.Viewport.SetIntensityWindow(layerID, *req.Min, *req.Max)) {
				return
			}
		}
		if req.Brightness != nil {
			if !apply(v.Viewport.SetBrightness(layerID, *req.Brightness)) {
				return
			}
		}
		if req.Tint != nil {
			c, err := parseColorParam(*req.Tint)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if !apply(v.Viewport.SetTint(layerID, c)) {
				return
			}
		}
		if req.Opacity != nil {
			if !apply(v.Viewport.SetOpacity(layerID, *req.Opacity)) {
				return
			}
		}
		if req.Visible != nil {
			if !apply(v.Viewport.SetVisible(layerID, *req.Visible)) {
				return
			}
		}
		if req.Fill != nil || req.Stroke != nil {
			l, err := v.Viewport.Layer(layerID)
			if !apply(err) {
				return
			}
			if req.Fill != nil {
				c, err := parseColorParam(*req.Fill)
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				l.SetFill(c)
			}
			if req.Stroke != nil {
				c, err := parseColorParam(*req.Stroke)
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				l.SetStroke(c)
			}
		}

		registry.Bump(v.ID)
		l, err := v.Viewport.Layer(layerID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, layerToInfo(l))
	}
}

func layerDeleteHandler(registry *ViewerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := getViewer(r)
		layerID := chi.URLParam(r, "layer_id")
		v.Viewport.RemoveLayer(layerID)
		registry.Bump(v.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ---- objects ----

func objectsRegisterHandler(w http.ResponseWriter, r *http.Request) {
	v := getViewer(r)
	objectType := chi.URLParam(r, "object_type")

	var objs []viewer.MapObject
	if err := json.NewDecoder(r.Body).Decode(&objs); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	v.RegisterObjects(objectType, objs)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"objectType": objectType,
		"registered": v.ObjectCount(objectType),
	})
}

// ---- plane and camera ----

type planeRequest struct {
	Tpoint int `json:"tpoint"`
	Zplane int `json:"zplane"`
}

func planeHandler(registry *ViewerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := getViewer(r)
		var req planeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		v.Viewport.SetPlane(req.Tpoint, req.Zplane)
		registry.Bump(v.ID)
		writeJSON(w, http.StatusOK, map[string]int{"tpoint": req.Tpoint, "zplane": req.Zplane})
	}
}

func cameraGetHandler(w http.ResponseWriter, r *http.Request) {
	v := getViewer(r)
	writeJSON(w, http.StatusOK, v.Viewport.Camera())
}

func cameraSetHandler(w http.ResponseWriter, r *http.Request) {
	v := getViewer(r)
	var cam viewer.Camera
	if err := json.NewDecoder(r.Body).Decode(&cam); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	v.Viewport.SetCamera(cam)
	writeJSON(w, http.StatusOK, cam)
}

// ---- selections ----

type selectionInfo struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	ObjectType string  `json:"objectType"`
	Color      string  `json:"color"`
	Active     bool    `json:"active"`
	Members    []int64 `json:"members"`
}

func selectionToInfo(s *viewer.Selection) selectionInfo {
	return selectionInfo{
		ID:         s.ID,
		Name:       s.Name,
		ObjectType: s.ObjectType,
		Color:      s.Color.ToHex(),
		Active:     s.Active,
		Members:    s.MemberIDs(),
	}
}

func selectionsHandler(w http.ResponseWriter, r *http.Request) {
	v := getViewer(r)
	var infos []selectionInfo
	for _, objectType := range v.Selections.ObjectTypes() {
		for _, s := range v.Selections.SelectionsForType(objectType) {
			infos = append(infos, selectionToInfo(s))
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"selections": infos,
		"markerMode": v.Selections.MarkerModeActive(),
	})
}

type selectionCreateRequest struct {
	ObjectType string `json:"objectType"`
}

func selectionCreateHandler(registry *ViewerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := getViewer(r)
		var req selectionCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.ObjectType == "" {
			http.Error(w, "objectType is required", http.StatusBadRequest)
			return
		}
		s := v.Selections.AddNewSelection(req.ObjectType)
		registry.Bump(v.ID)
		writeJSON(w, http.StatusCreated, selectionToInfo(s))
	}
}

func lookupSelection(w http.ResponseWriter, r *http.Request) (*viewer.Viewer, *viewer.Selection, bool) {
	v := getViewer(r)
	objectType := chi.URLParam(r, "object_type")
	id, err := strconv.Atoi(chi.URLParam(r, "selection_id"))
	if err != nil {
		http.Error(w, "invalid selection id", http.StatusBadRequest)
		return nil, nil, false
	}
	s, err := v.Selections.Selection(objectType, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, nil, false
	}
	return v, s, true
}

func selectionActivateHandler(w http.ResponseWriter, r *http.Request) {
	_, s, ok := lookupSelection(w, r)
	if !ok {
		return
	}
	v := getViewer(r)
	v.Selections.ToggleActiveSelection(s)
	writeJSON(w, http.StatusOK, selectionToInfo(s))
}

func selectionClearHandler(registry *ViewerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, s, ok := lookupSelection(w, r)
		if !ok {
			return
		}
		v.Selections.Clear(s)
		registry.Bump(v.ID)
		writeJSON(w, http.StatusOK, selectionToInfo(s))
	}
}

func selectionDeleteHandler(registry *ViewerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, s, ok := lookupSelection(w, r)
		if !ok {
			return
		}
		v.Selections.RemoveSelection(s)
		registry.Bump(v.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}

type markerModeRequest struct {
	Active bool `json:"active"`
}

func markerModeHandler(w http.ResponseWriter, r *http.Request) {
	v := getViewer(r)
	var req markerModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Active {
		v.Selections.ActivateMarkerSelectionMode()
	} else {
		v.Selections.DeactivateMarkerSelectionMode()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"markerMode": v.Selections.MarkerModeActive()})
}

type pickRequest struct {
	ObjectID int64 `json:"objectId"`
}

func pickHandler(registry *ViewerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := getViewer(r)
		var req pickRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		changed := v.Selections.Pick(req.ObjectID)
		if changed {
			registry.Bump(v.ID)
		}
		writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
	}
}

// ---- tool sessions and requests ----

func sessionCreateHandler(w http.ResponseWriter, r *http.Request) {
	v := getViewer(r)
	toolID := chi.URLParam(r, "tool_id")
	sess, err := v.Session(toolID)
	if err != nil {
		if errors.Is(err, viewer.ErrUnknownTool) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionUuid": sess.UUID,
		"toolId":      sess.Tool.ID,
		"running":     sess.IsRunning(),
	})
}

func sessionDiscardHandler(w http.ResponseWriter, r *http.Request) {
	v := getViewer(r)
	v.DiscardSession(chi.URLParam(r, "tool_id"))
	w.WriteHeader(http.StatusNoContent)
}

type toolRequestBody struct {
	ChosenObjectType string                 `json:"chosenObjectType,omitempty"`
	TrainingClasses  []tools.TrainingClass  `json:"trainingClasses,omitempty"`
	SelectedFeatures []string               `json:"selectedFeatures,omitempty"`
	Extra            map[string]interface{} `json:"extra,omitempty"`
}

func toolRequestHandler(jm *jobs.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "submission manager not configured", http.StatusNotImplemented)
			return
		}

		v := getViewer(r)
		toolID := chi.URLParam(r, "tool_id")

		sess, err := v.Session(toolID)
		if err != nil {
			if errors.Is(err, viewer.ErrUnknownTool) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if sess.IsRunning() {
			http.Error(w, viewer.ErrSessionBusy.Error(), http.StatusConflict)
			return
		}

		var body toolRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		payload, err := json.Marshal(tools.Request{
			SessionUUID:      sess.UUID,
			ToolID:           toolID,
			ChosenObjectType: body.ChosenObjectType,
			TrainingClasses:  body.TrainingClasses,
			SelectedFeatures: body.SelectedFeatures,
			Extra:            body.Extra,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		sub, err := jm.Submit(toolstore.SubmissionParams{
			ViewerID:         v.ID,
			ToolID:           toolID,
			SessionUUID:      sess.UUID,
			ChosenObjectType: body.ChosenObjectType,
			Payload:          payload,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"submissionId": sub.ID,
			"sessionUuid":  sess.UUID,
			"status":       sub.Status,
		})
	}
}

// ---- results ----

type resultInfoDTO struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	SubmissionID string               `json:"submissionId"`
	SessionUUID  string               `json:"sessionUuid"`
	LayerID      string               `json:"layerId"`
	Visible      bool                 `json:"visible"`
	Legend       []viewer.LegendEntry `json:"legend"`
	Plots        []viewer.Plot        `json:"plots,omitempty"`
}

func resultToDTO(res *viewer.ToolResult) resultInfoDTO {
	return resultInfoDTO{
		ID:           res.ID,
		Name:         res.Name,
		SubmissionID: res.SubmissionID,
		SessionUUID:  res.SessionUUID,
		LayerID:      res.LayerID,
		Visible:      res.Visible(),
		Legend:       res.Legend,
		Plots:        res.Plots,
	}
}

func resultsHandler(w http.ResponseWriter, r *http.Request) {
	v := getViewer(r)
	results := v.Results()
	dtos := make([]resultInfoDTO, 0, len(results))
	for _, res := range results {
		dtos = append(dtos, resultToDTO(res))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": dtos})
}

func resultHandler(w http.ResponseWriter, r *http.Request) {
	v := getViewer(r)
	res, err := v.Result(chi.URLParam(r, "result_id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, resultToDTO(res))
}

type resultVisibilityRequest struct {
	Visible bool `json:"visible"`
}

func resultVisibilityHandler(registry *ViewerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := getViewer(r)
		var req resultVisibilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		id := chi.URLParam(r, "result_id")
		if err := v.SetResultVisible(id, req.Visible); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		registry.Bump(v.ID)
		res, err := v.Result(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, resultToDTO(res))
	}
}

func resultDeleteHandler(registry *ViewerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := getViewer(r)
		if err := v.DeleteResult(chi.URLParam(r, "result_id")); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		registry.Bump(v.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ---- tiles ----

func tileHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := getViewer(r)
		layerID := chi.URLParam(r, "layer_id")
		z, err := strconv.Atoi(chi.URLParam(r, "z"))
		if err != nil {
			http.Error(w, "invalid z", http.StatusBadRequest)
			return
		}
		x, err := strconv.Atoi(chi.URLParam(r, "x"))
		if err != nil {
			http.Error(w, "invalid x", http.StatusBadRequest)
			return
		}
		y, err := strconv.Atoi(chi.URLParam(r, "y"))
		if err != nil {
			http.Error(w, "invalid y", http.StatusBadRequest)
			return
		}

		l, err := v.Viewport.Layer(layerID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		key := cache.LayerTileKey(v.ID, layerID, z, x, y, cfg.Registry.Revision(v.ID))
		if cfg.Cache != nil {
			if data, ok := cfg.Cache.GetTile(key); ok {
				w.Header().Set("Content-Type", "image/png")
				w.Header().Set("Cache-Control", "public, max-age=3600")
				w.Write(data)
				return
			}
		}

		data, err := cfg.Renderer.RenderVisualTile(l, z, x, y)
		if err != nil {
			// Return empty tile on error
			data, _ = cfg.Renderer.CreateEmptyTile()
		} else if cfg.Cache != nil {
			cfg.Cache.SetTile(key, data)
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Write(data)
	}
}

// ---- state ----

func stateGetHandler(w http.ResponseWriter, r *http.Request) {
	v := getViewer(r)
	writeJSON(w, http.StatusOK, state.Capture(v))
}

func stateRestoreHandler(registry *ViewerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := getViewer(r)
		var snap state.Snapshot
		if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := state.Restore(v, snap); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		registry.Bump(v.ID)
		writeJSON(w, http.StatusOK, map[string]bool{"restored": true})
	}
}

func stateExportHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := getViewer(r)

		key := fmt.Sprintf("%s:%d", v.ID, cfg.Registry.Revision(v.ID))
		if cfg.Cache != nil {
			if data, ok := cfg.Cache.GetSnapshot(key); ok {
				w.Header().Set("Content-Type", "application/octet-stream")
				w.Write(data)
				return
			}
		}

		data, err := state.Encode(state.Capture(v))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if cfg.Cache != nil {
			cfg.Cache.SetSnapshot(key, data)
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)
	}
}

func stateImportHandler(registry *ViewerRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := getViewer(r)
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		snap, err := state.Decode(data)
		if err != nil {
			http.Error(w, "invalid snapshot: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := state.Restore(v, snap); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		registry.Bump(v.ID)
		writeJSON(w, http.StatusOK, map[string]bool{"restored": true})
	}
}
