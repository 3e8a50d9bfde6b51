// Package api provides the HTTP API for inspecting and steering the
// off-screen simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"

	"github.com/talgya/offscreen/internal/agents"
	"github.com/talgya/offscreen/internal/engine"
	"github.com/talgya/offscreen/internal/logging"
	"github.com/talgya/offscreen/internal/persistence"
	"github.com/talgya/offscreen/internal/world"
)

// Server serves the simulation over HTTP.
type Server struct {
	Runner   *engine.Runner
	Bridge   *engine.Bridge
	DB       *persistence.DB     // Optional; snapshot endpoints need it
	Gatherer prometheus.Gatherer // Optional; nil disables /metrics
	AdminKey string              // Bearer token for POST endpoints. Empty = POST disabled.
	Limiter  *RateLimiter        // Optional; throttles admin requests per client
	Logger   *slog.Logger
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/actors", s.handleActors)
	mux.HandleFunc("GET /api/v1/actors/{id}", s.handleActor)
	mux.HandleFunc("GET /api/v1/actors/{id}/memory", s.handleMemory)
	mux.HandleFunc("GET /api/v1/actors/{id}/hostile/{target}", s.handleHostile)
	mux.HandleFunc("GET /api/v1/actors/{id}/route/{dest}", s.handleRoute)
	mux.HandleFunc("GET /api/v1/nodes", s.handleNodes)
	mux.HandleFunc("GET /api/v1/nodes/{id}", s.handleNode)
	mux.HandleFunc("GET /api/v1/encounters", s.handleEncounters)
	mux.HandleFunc("GET /api/v1/schedule", s.handleSchedule)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/snapshots", s.handleSnapshots)
	if s.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	// Admin endpoints.
	mux.HandleFunc("POST /api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("POST /api/v1/snapshot", s.adminOnly(s.handleSnapshot))
	mux.HandleFunc("POST /api/v1/crimes", s.adminOnly(s.handleCrime))
	mux.HandleFunc("POST /api/v1/actors/{id}/redirect", s.adminOnly(s.handleRedirect))
	mux.HandleFunc("POST /api/v1/actors/{id}/promote", s.adminOnly(s.handlePromote))
	mux.HandleFunc("POST /api/v1/actors/{id}/resolve", s.adminOnly(s.handleResolve))
	mux.HandleFunc("POST /api/v1/demote", s.adminOnly(s.handleDemote))

	return mux
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger().Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return oops.With("addr", addr).Wrapf(err, "serve")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return oops.With("addr", addr).Wrapf(err, "shutdown")
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return oops.With("addr", addr).Wrapf(err, "serve")
	}
	return nil
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	guarded := func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no admin key set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
	if s.Limiter != nil {
		return RateLimitMiddleware(s.Limiter, guarded)
	}
	return guarded
}

// view runs fn under the simulation lock and writes its result. Encoding
// happens inside the lock since results alias live state.
func (s *Server) view(w http.ResponseWriter, fn func(sim *engine.Simulation) (any, error)) {
	var body []byte
	err := s.Runner.Do(func(sim *engine.Simulation) error {
		v, err := fn(sim)
		if err != nil {
			return err
		}
		body, err = json.MarshalIndent(v, "", "  ")
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(append(body, '\n'))
}

// statusFor maps coded errors onto HTTP statuses.
func statusFor(err error) int {
	o, ok := oops.AsOops(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch o.Code() {
	case engine.CodeUnknownActor, world.CodeUnknownNode, persistence.CodeNoState:
		return http.StatusNotFound
	case engine.CodeActorExists, engine.CodeInvalidState:
		return http.StatusConflict
	case world.CodeUnreachable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.LogError(s.logger(), "request failed", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]any{"error": err.Error()}
	if o, ok := oops.AsOops(err); ok && o.Code() != nil {
		resp["code"] = o.Code()
	}
	json.NewEncoder(w).Encode(resp)
}

func queryLimit(r *http.Request, def, max int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= max {
			return n
		}
	}
	return def
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	speed := s.Runner.Speed()
	s.view(w, func(sim *engine.Simulation) (any, error) {
		now := sim.Now()
		return map[string]any{
			"clock":      now,
			"sim_time":   engine.SimTime(now),
			"speed":      speed,
			"seed":       sim.Rolls.Seed(),
			"actors":     len(sim.Actors()),
			"nodes":      sim.Graph.Len(),
			"pending":    sim.Sched.Len(),
			"encounters": len(sim.Encounters()),
		}, nil
	})
}

type actorSummary struct {
	ID          agents.ActorID     `json:"id"`
	Name        string             `json:"name"`
	Role        agents.Role        `json:"role"`
	Faction     string             `json:"faction"`
	Node        world.NodeID       `json:"node"`
	To          world.NodeID       `json:"to,omitempty"`
	Disposition engine.Disposition `json:"disposition"`
	Health      float64            `json:"health"`
	Hunger      float64            `json:"hunger"`
	Fatigue     float64            `json:"fatigue"`
	LOD         string             `json:"lod"`
}

func (s *Server) summarize(sim *engine.Simulation, a *agents.Actor) actorSummary {
	st, _ := sim.StateOf(a.ID)
	lod := engine.LODSimulated.String()
	if s.Bridge != nil {
		lod = s.Bridge.Behavior(a.ID).LOD().String()
	}
	return actorSummary{
		ID:          a.ID,
		Name:        a.Name,
		Role:        a.Role,
		Faction:     string(a.Faction),
		Node:        a.Node(),
		To:          a.Position.To,
		Disposition: st.Disposition,
		Health:      a.Needs.Health,
		Hunger:      a.Needs.Hunger,
		Fatigue:     a.Needs.Fatigue,
		LOD:         lod,
	}
}

// handleActors lists simulated actors, optionally only those at ?node=.
func (s *Server) handleActors(w http.ResponseWriter, r *http.Request) {
	node := world.NodeID(r.URL.Query().Get("node"))
	role := r.URL.Query().Get("role")
	s.view(w, func(sim *engine.Simulation) (any, error) {
		list := sim.Actors()
		if node != "" {
			if !sim.Graph.Has(node) {
				return nil, oops.Code(world.CodeUnknownNode).With("node", node).Errorf("unknown node %s", node)
			}
			list = sim.ActorsAt(node)
		}
		out := make([]actorSummary, 0, len(list))
		for _, a := range list {
			if role != "" && a.Role.String() != role {
				continue
			}
			out = append(out, s.summarize(sim, a))
		}
		return out, nil
	})
}

func (s *Server) handleActor(w http.ResponseWriter, r *http.Request) {
	id := agents.ActorID(r.PathValue("id"))
	s.view(w, func(sim *engine.Simulation) (any, error) {
		return sim.StateOf(id)
	})
}

func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	id := agents.ActorID(r.PathValue("id"))
	prefix := r.URL.Query().Get("ns")
	s.view(w, func(sim *engine.Simulation) (any, error) {
		entries, err := sim.MemoryOf(id)
		if err != nil {
			return nil, err
		}
		if prefix == "" {
			return entries, nil
		}
		filtered := make([]agents.MemoryEntry, 0, len(entries))
		for _, e := range entries {
			if strings.HasPrefix(e.Key, prefix+":") {
				filtered = append(filtered, e)
			}
		}
		return filtered, nil
	})
}

func (s *Server) handleHostile(w http.ResponseWriter, r *http.Request) {
	id := agents.ActorID(r.PathValue("id"))
	target := agents.ActorID(r.PathValue("target"))
	s.view(w, func(sim *engine.Simulation) (any, error) {
		if _, err := sim.Actor(id); err != nil {
			return nil, err
		}
		return map[string]any{
			"actor":   id,
			"target":  target,
			"hostile": sim.HostileToward(id, target),
		}, nil
	})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	id := agents.ActorID(r.PathValue("id"))
	dest := world.NodeID(r.PathValue("dest"))
	s.view(w, func(sim *engine.Simulation) (any, error) {
		return sim.PlanRoute(id, dest)
	})
}

type nodeSummary struct {
	*world.Node
	Occupants int `json:"occupants"`
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	s.view(w, func(sim *engine.Simulation) (any, error) {
		nodes := sim.Graph.Nodes()
		out := make([]nodeSummary, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, nodeSummary{Node: n, Occupants: len(sim.ActorsAt(n.ID))})
		}
		return map[string]any{
			"nodes": out,
			"edges": sim.Graph.Edges(),
		}, nil
	})
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	id := world.NodeID(r.PathValue("id"))
	s.view(w, func(sim *engine.Simulation) (any, error) {
		n := sim.Graph.Node(id)
		if n == nil {
			return nil, oops.Code(world.CodeUnknownNode).With("node", id).Errorf("unknown node %s", id)
		}
		present := sim.ActorsAt(id)
		actors := make([]actorSummary, 0, len(present))
		for _, a := range present {
			actors = append(actors, s.summarize(sim, a))
		}
		return map[string]any{
			"node":      n,
			"neighbors": sim.Graph.Neighbors(id),
			"actors":    actors,
			"stock":     sim.Stock(id),
		}, nil
	})
}

func (s *Server) handleEncounters(w http.ResponseWriter, r *http.Request) {
	s.view(w, func(sim *engine.Simulation) (any, error) {
		return sim.Encounters(), nil
	})
}

// handleSchedule dumps the next pending events in firing order.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 1000)
	actor := agents.ActorID(r.URL.Query().Get("actor"))
	s.view(w, func(sim *engine.Simulation) (any, error) {
		var pending []engine.Event
		if actor != "" {
			pending = sim.Sched.PendingFor(actor)
		} else {
			pending = sim.Sched.Pending()
		}
		sort.SliceStable(pending, func(i, j int) bool {
			if pending[i].Time != pending[j].Time {
				return pending[i].Time < pending[j].Time
			}
			return pending[i].Seq < pending[j].Seq
		})
		if len(pending) > limit {
			pending = pending[:limit]
		}
		return pending, nil
	})
}

// handleEvents returns the recent narrative log, newest last. ?source=db
// reads the persisted log instead of the in-memory ring.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 500)
	category := r.URL.Query().Get("category")

	if r.URL.Query().Get("source") == "db" {
		if s.DB == nil {
			http.Error(w, "database not available", http.StatusServiceUnavailable)
			return
		}
		events, err := s.DB.RecentEvents(limit)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, events)
		return
	}

	s.view(w, func(sim *engine.Simulation) (any, error) {
		events := sim.Events
		if category != "" {
			var filtered []engine.LogEntry
			for _, e := range events {
				if e.Category == category {
					filtered = append(filtered, e)
				}
			}
			events = filtered
		}
		start := 0
		if len(events) > limit {
			start = len(events) - limit
		}
		return append([]engine.LogEntry{}, events[start:]...), nil
	})
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	list, err := s.DB.Snapshots(queryLimit(r, 20, 200))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, list)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Speed < 0 || req.Speed > 1000 {
		http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
		return
	}
	s.Runner.SetSpeed(req.Speed)
	s.logger().Info("speed changed", "speed", req.Speed)

	writeJSON(w, map[string]float64{"speed": s.Runner.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	var (
		id  string
		now float64
	)
	err := s.Runner.Do(func(sim *engine.Simulation) error {
		var err error
		id, err = s.DB.SaveState(sim)
		now = sim.Now()
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"save_id":  id,
		"sim_time": engine.SimTime(now),
		"message":  "snapshot saved",
	})
}

// handleCrime records a crime. With a witness the single actor learns of it;
// without one everyone who could have seen it does.
func (s *Server) handleCrime(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Witness  agents.ActorID `json:"witness"`
		Offender agents.ActorID `json:"offender"`
		Node     world.NodeID   `json:"node"`
		Note     string         `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Offender == "" || req.Node == "" {
		http.Error(w, "offender and node are required", http.StatusBadRequest)
		return
	}
	s.view(w, func(sim *engine.Simulation) (any, error) {
		if !sim.Graph.Has(req.Node) {
			return nil, oops.Code(world.CodeUnknownNode).With("node", req.Node).Errorf("unknown node %s", req.Node)
		}
		if req.Witness != "" {
			if err := sim.RecordCrime(req.Witness, req.Offender, req.Node, sim.Now(), req.Note); err != nil {
				return nil, err
			}
			return map[string]any{"witnesses": []agents.ActorID{req.Witness}}, nil
		}
		return map[string]any{"witnesses": sim.ReportCrime(req.Offender, req.Node, sim.Now(), req.Note)}, nil
	})
}

func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	id := agents.ActorID(r.PathValue("id"))
	var req struct {
		Node world.NodeID `json:"node"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Node == "" {
		http.Error(w, "node is required", http.StatusBadRequest)
		return
	}
	s.view(w, func(sim *engine.Simulation) (any, error) {
		if err := sim.Redirect(id, req.Node); err != nil {
			return nil, err
		}
		return sim.StateOf(id)
	})
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	if s.Bridge == nil {
		http.Error(w, "no real-time side attached", http.StatusServiceUnavailable)
		return
	}
	id := agents.ActorID(r.PathValue("id"))
	s.view(w, func(sim *engine.Simulation) (any, error) {
		return s.Bridge.Promote(id)
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := agents.ActorID(r.PathValue("id"))
	s.view(w, func(sim *engine.Simulation) (any, error) {
		a, err := sim.Actor(id)
		if err != nil {
			return nil, err
		}
		if a.Encounter == "" {
			return nil, oops.Code(engine.CodeInvalidState).With("actor", id).Errorf("%s is not fighting", id)
		}
		if err := sim.ForceResolve(a.Encounter); err != nil {
			return nil, err
		}
		return sim.Encounters(), nil
	})
}

func (s *Server) handleDemote(w http.ResponseWriter, r *http.Request) {
	if s.Bridge == nil {
		http.Error(w, "no real-time side attached", http.StatusServiceUnavailable)
		return
	}
	var e engine.Entity
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	s.view(w, func(sim *engine.Simulation) (any, error) {
		a, err := s.Bridge.Demote(e)
		if err != nil {
			return nil, err
		}
		return sim.StateOf(a.ID)
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
