// Package api provides the HTTP API for inspecting and editing a workspace.
// GET endpoints are public (read-only observation).
// POST, PUT and DELETE endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/hexrules/internal/engine"
	"github.com/talgya/hexrules/internal/entity"
	"github.com/talgya/hexrules/internal/ontology"
	"github.com/talgya/hexrules/internal/world"
)

// Default write budget per client IP.
const (
	writeRate   = 120
	writeWindow = time.Minute
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Server serves a workspace over HTTP.
type Server struct {
	Workspace   *engine.Workspace
	DB          engine.Saver // Target of POST /snapshot. Nil = snapshots disabled.
	Port        int
	AdminKey    string   // Bearer token for write endpoints. Empty = writes disabled.
	CORSOrigins []string // Allowed origins in addition to localhost dev servers.

	started time.Time
}

// Handler builds the routing tree.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	writes := NewRateLimiter(writeRate, writeWindow)
	admin := func(h http.HandlerFunc) http.HandlerFunc {
		return RateLimitMiddleware(writes, s.adminOnly(h))
	}
	// GET stays public and unthrottled, anything else goes through admin.
	readOrAdmin := func(h http.HandlerFunc) http.HandlerFunc {
		guarded := admin(h)
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				h(w, r)
				return
			}
			guarded(w, r)
		}
	}

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/map", s.handleMap)
	mux.HandleFunc("/api/v1/ontology", s.handleOntology)
	mux.HandleFunc("/api/v1/validation", s.handleValidation)
	mux.HandleFunc("/api/v1/moves", s.handleMoves)
	mux.Handle("/metrics", promhttp.Handler())

	// Admin endpoints (require bearer token).
	mux.HandleFunc("/api/v1/types", readOrAdmin(s.handleTypes))
	mux.HandleFunc("/api/v1/concepts", admin(s.handleConcepts))
	mux.HandleFunc("/api/v1/roles", admin(s.handleRoles))
	mux.HandleFunc("/api/v1/bindings", admin(s.handleBindings))
	mux.HandleFunc("/api/v1/relations", admin(s.handleRelations))
	mux.HandleFunc("/api/v1/constraints", admin(s.handleConstraints))
	mux.HandleFunc("/api/v1/reconcile", admin(s.handleReconcile))
	mux.HandleFunc("/api/v1/select", admin(s.handleSelect))
	mux.HandleFunc("/api/v1/units/move", admin(s.handleMoveUnit))
	mux.HandleFunc("/api/v1/snapshot", admin(s.handleSnapshot))

	return corsMiddleware(s.CORSOrigins, mux)
}

// Start begins serving the HTTP API in a goroutine. The returned server can
// be shut down by the caller.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "snapshots", s.DB != nil)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowedOrigins[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on anything but GET.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no HEXRULES_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	validation := s.Workspace.Validation()
	moves := s.Workspace.Moves()

	status := map[string]any{
		"name":           "hexrules",
		"revision":       s.Workspace.Revision(),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"schema_valid":   validation.Valid,
		"schema_errors":  len(validation.Errors),
		"selected":       moves.ForEntity,
		"valid_moves":    len(moves.ValidPositions),
	}
	s.Workspace.View(func(st engine.Stores) {
		status["radius"] = st.Board.Radius
		status["entity_types"] = len(st.Types.Types())
		status["concepts"] = len(st.Ontology.Concepts())
		status["relations"] = len(st.Ontology.Relations())
		status["constraints"] = len(st.Ontology.Constraints())
		status["units"] = len(st.Board.Units())
	})
	writeJSON(w, status)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	type mapResponse struct {
		Radius   int             `json:"radius"`
		Tiles    []world.Entity  `json:"tiles"`
		Units    []world.Entity  `json:"units"`
		Selected *world.EntityID `json:"selected"`
	}
	var resp mapResponse
	s.Workspace.View(func(st engine.Stores) {
		resp = mapResponse{
			Radius:   st.Board.Radius,
			Tiles:    st.Board.Tiles(),
			Units:    st.Board.Units(),
			Selected: st.Board.Selected(),
		}
	})
	writeJSON(w, resp)
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var types []entity.EntityType
		s.Workspace.View(func(st engine.Stores) { types = st.Types.Types() })
		writeJSON(w, types)
	case http.MethodPost, http.MethodPut:
		var req typeRequest
		if !decode(w, r, &req) {
			return
		}
		et := req.entityType()
		if r.Method == http.MethodPost {
			s.edit(w, http.StatusCreated, func(st engine.Stores) (any, error) {
				return et, st.Types.Create(et)
			})
			return
		}
		s.edit(w, http.StatusOK, func(st engine.Stores) (any, error) {
			return et, st.Types.Update(et)
		})
	case http.MethodDelete:
		id := entity.TypeID(r.URL.Query().Get("id"))
		s.edit(w, http.StatusOK, func(st engine.Stores) (any, error) {
			return deleted(id), st.Types.Delete(id)
		})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleOntology(w http.ResponseWriter, r *http.Request) {
	var snap ontology.Snapshot
	s.Workspace.View(func(st engine.Stores) { snap = st.Ontology.Snapshot() })
	writeJSON(w, snap)
}

func (s *Server) handleValidation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Workspace.Validation())
}

func (s *Server) handleMoves(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Workspace.Moves())
}

func (s *Server) handleConcepts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req conceptRequest
		if !decode(w, r, &req) {
			return
		}
		s.edit(w, http.StatusCreated, func(st engine.Stores) (any, error) {
			return st.Ontology.CreateConcept(req.concept())
		})
	case http.MethodPut:
		var req renameRequest
		if !decode(w, r, &req) {
			return
		}
		s.edit(w, http.StatusOK, func(st engine.Stores) (any, error) {
			if err := st.Ontology.RenameConcept(req.ID, req.Name); err != nil {
				return nil, err
			}
			c, _ := st.Ontology.Concept(req.ID)
			return c, nil
		})
	case http.MethodDelete:
		id := ontology.ConceptID(r.URL.Query().Get("id"))
		s.edit(w, http.StatusOK, func(st engine.Stores) (any, error) {
			return deleted(id), st.Ontology.DeleteConcept(id)
		})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost, http.MethodPut:
		var req roleEditRequest
		if !decode(w, r, &req) {
			return
		}
		role := req.Role.role()
		if r.Method == http.MethodPost {
			s.edit(w, http.StatusCreated, func(st engine.Stores) (any, error) {
				return st.Ontology.AddRole(req.Concept, role)
			})
			return
		}
		if role.ID == "" {
			http.Error(w, "role id required", http.StatusUnprocessableEntity)
			return
		}
		s.edit(w, http.StatusOK, func(st engine.Stores) (any, error) {
			return role, st.Ontology.UpdateRole(req.Concept, role)
		})
	case http.MethodDelete:
		q := r.URL.Query()
		concept, id := ontology.ConceptID(q.Get("concept")), ontology.RoleID(q.Get("id"))
		s.edit(w, http.StatusOK, func(st engine.Stores) (any, error) {
			return deleted(id), st.Ontology.RemoveRole(concept, id)
		})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleBindings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost, http.MethodPut:
		var req bindingRequest
		if !decode(w, r, &req) {
			return
		}
		b := req.binding()
		if r.Method == http.MethodPost {
			s.edit(w, http.StatusCreated, func(st engine.Stores) (any, error) {
				return st.Ontology.CreateBinding(b)
			})
			return
		}
		s.edit(w, http.StatusOK, func(st engine.Stores) (any, error) {
			return b, st.Ontology.UpdateBinding(b)
		})
	case http.MethodDelete:
		id := ontology.BindingID(r.URL.Query().Get("id"))
		s.edit(w, http.StatusOK, func(st engine.Stores) (any, error) {
			return deleted(id), st.Ontology.DeleteBinding(id)
		})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRelations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost, http.MethodPut:
		var req relationRequest
		if !decode(w, r, &req) {
			return
		}
		rel := req.relation()
		if r.Method == http.MethodPost {
			s.edit(w, http.StatusCreated, func(st engine.Stores) (any, error) {
				return st.Ontology.CreateRelation(rel)
			})
			return
		}
		s.edit(w, http.StatusOK, func(st engine.Stores) (any, error) {
			return rel, st.Ontology.UpdateRelation(rel)
		})
	case http.MethodDelete:
		id := ontology.RelationID(r.URL.Query().Get("id"))
		s.edit(w, http.StatusOK, func(st engine.Stores) (any, error) {
			return deleted(id), st.Ontology.DeleteRelation(id)
		})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleConstraints(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost, http.MethodPut:
		var req constraintRequest
		if !decode(w, r, &req) {
			return
		}
		c := req.constraint()
		if r.Method == http.MethodPost {
			s.edit(w, http.StatusCreated, func(st engine.Stores) (any, error) {
				return st.Ontology.CreateConstraint(c)
			})
			return
		}
		s.edit(w, http.StatusOK, func(st engine.Stores) (any, error) {
			if err := st.Ontology.UpdateConstraint(c); err != nil {
				return nil, err
			}
			updated, _ := st.Ontology.Constraint(c.ID)
			return updated, nil
		})
	case http.MethodDelete:
		id := ontology.ConstraintID(r.URL.Query().Get("id"))
		s.edit(w, http.StatusOK, func(st engine.Stores) (any, error) {
			return deleted(id), st.Ontology.DeleteConstraint(id)
		})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.edit(w, http.StatusOK, func(st engine.Stores) (any, error) {
		return map[string]any{"changed": st.Ontology.Reconcile()}, nil
	})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req selectRequest
	if !decode(w, r, &req) {
		return
	}
	moves, err := s.Workspace.Select(req.Unit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, moves)
}

func (s *Server) handleMoveUnit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req moveRequest
	if !decode(w, r, &req) {
		return
	}
	s.edit(w, http.StatusOK, func(st engine.Stores) (any, error) {
		if err := st.Board.MoveUnit(req.Unit, world.HexCoord{Q: req.Q, R: req.R}); err != nil {
			return nil, err
		}
		u, _ := st.Board.Unit(req.Unit)
		return u, nil
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	if err := s.DB.Save(s.Workspace); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"revision": s.Workspace.Revision(),
		"message":  "snapshot saved",
	})
}

// edit applies fn to the workspace and writes its result, or the mapped
// error if fn failed.
func (s *Server) edit(w http.ResponseWriter, status int, fn func(st engine.Stores) (any, error)) {
	var result any
	err := s.Workspace.Apply(func(st engine.Stores) error {
		var err error
		result, err = fn(st)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(result)
}

func deleted[T ~string](id T) map[string]string {
	return map[string]string{"deleted": string(id)}
}

// decode reads a JSON body into dst and validates it. On failure it writes
// the response and returns false.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ontology.ErrNotFound), errors.Is(err, world.ErrNotFound), errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ontology.ErrInvalidReference), errors.Is(err, ontology.ErrInvalidValue),
		errors.Is(err, entity.ErrInvalidType), errors.Is(err, world.ErrOutOfBounds):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("edit failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
