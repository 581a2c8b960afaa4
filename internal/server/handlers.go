package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/loopwidget/planscope/pkg/events"
	"github.com/loopwidget/planscope/pkg/intent"
	"github.com/loopwidget/planscope/pkg/resolver"
	"github.com/loopwidget/planscope/pkg/sources"
	"github.com/loopwidget/planscope/pkg/storage"
	"github.com/loopwidget/planscope/pkg/widget"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WidgetRequest describes the product a widget is bound to.
type WidgetRequest struct {
	SectionID          string `json:"section_id"`
	Store              string `json:"store"`
	Handle             string `json:"handle"`
	ProductID          string `json:"product_id"`
	SecondaryProductID string `json:"secondary_product_id"`
	VariantID          string `json:"variant_id"`
	Mode               string `json:"mode"`
	OneTimePrice       int64  `json:"one_time_price"`
}

// WidgetResponse is a widget view with its session id.
type WidgetResponse struct {
	ID string `json:"id,omitempty"`
	widget.View
}

func (s *Server) newWidget(req WidgetRequest, subscribe bool) (*widget.Widget, error) {
	if req.Store == "" || req.Handle == "" {
		return nil, errors.New("store and handle are required")
	}
	if s.cfg.Sources == nil {
		return nil, errors.New("no plan sources configured")
	}
	mode := s.cfg.DefaultMode
	if req.Mode != "" {
		m, err := intent.ParseMode(req.Mode)
		if err != nil {
			return nil, err
		}
		mode = m
	}

	inline, remote := s.cfg.Sources(req.Store)
	var bus events.Bus
	if subscribe {
		bus = s.bus
	}
	return widget.New(widget.Config{
		SectionID: req.SectionID,
		Product: sources.ProductRef{
			Store:              req.Store,
			Handle:             req.Handle,
			ProductID:          req.ProductID,
			SecondaryProductID: req.SecondaryProductID,
			VariantID:          req.VariantID,
		},
		Mode:         mode,
		OneTimePrice: req.OneTimePrice,
		Formatter:    s.cfg.Formatter,
	}, bus, resolver.New(inline, remote, s.log), s.cfg.Engine, s.log), nil
}

// handlePlans resolves one product without keeping a session.
func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := WidgetRequest{
		Store:              q.Get("store"),
		Handle:             q.Get("handle"),
		ProductID:          q.Get("product_id"),
		SecondaryProductID: q.Get("secondary_product_id"),
		VariantID:          q.Get("variant_id"),
		Mode:               q.Get("mode"),
	}
	wd, err := s.newWidget(req, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer wd.Deactivate()
	if err := wd.Activate(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, WidgetResponse{View: wd.State()})
}

func (s *Server) handleCreateWidget(w http.ResponseWriter, r *http.Request) {
	var req WidgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wd, err := s.newWidget(req, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Sessions outlive the request that created them.
	if err := wd.Activate(s.ctx); err != nil && !errors.Is(err, resolver.ErrStaleResolution) {
		wd.Deactivate()
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.widgets[id] = wd
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, WidgetResponse{ID: id, View: wd.State()})
}

func (s *Server) handleGetWidget(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wd, ok := s.lookup(id)
	if !ok {
		http.Error(w, "widget not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, WidgetResponse{ID: id, View: wd.State()})
}

type ModeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSwitchMode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wd, ok := s.lookup(id)
	if !ok {
		http.Error(w, "widget not found", http.StatusNotFound)
		return
	}
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m, err := intent.ParseMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wd.Intent().SwitchMode(m)
	writeJSON(w, http.StatusOK, WidgetResponse{ID: id, View: wd.State()})
}

type PlanRequest struct {
	PlanID string `json:"plan_id"`
}

func (s *Server) handleSelectPlan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wd, ok := s.lookup(id)
	if !ok {
		http.Error(w, "widget not found", http.StatusNotFound)
		return
	}
	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := wd.Intent().SelectPlan(req.PlanID); err != nil {
		switch {
		case errors.Is(err, intent.ErrNotSubscription):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, intent.ErrUnknownPlan):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, WidgetResponse{ID: id, View: wd.State()})
}

func (s *Server) handleDeleteWidget(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	wd, ok := s.widgets[id]
	delete(s.widgets, id)
	s.mu.Unlock()
	if !ok {
		http.Error(w, "widget not found", http.StatusNotFound)
		return
	}
	wd.Deactivate()
	w.WriteHeader(http.StatusNoContent)
}

type VariantChangeRequest struct {
	SectionID string `json:"section_id"`
	VariantID string `json:"variant_id"`
	// Price is the variant's one-time price in minor units, if the page has it.
	Price int64 `json:"price,omitempty"`
}

func (s *Server) handleVariantChange(w http.ResponseWriter, r *http.Request) {
	var req VariantChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.VariantID == "" {
		http.Error(w, "variant_id is required", http.StatusBadRequest)
		return
	}
	s.bus.PublishVariantChange(events.VariantChange{SectionID: req.SectionID, VariantID: req.VariantID, Price: req.Price})
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.cfg.DB == nil {
		http.Error(w, "no database configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	changes, err := s.cfg.DB.ListRecentChanges(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(changes))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	stats, err := s.cfg.DB.GetStats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(stats))
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	// Parse query params for filtering
	q := r.URL.Query()
	opts := storage.ListOptions{
		StoreURL:      q.Get("store"),
		HandleFilter:  q.Get("search"),
		IncludeNoDeal: q.Get("include_no_deal") == "true",
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		opts.Since = t
	}

	entries, err := s.cfg.DB.ListEntries(r.Context(), opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	products, err := s.cfg.DB.ListProducts(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(products))
}

// nonNil keeps empty lists as [] rather than null.
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
