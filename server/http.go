package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	errs "chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/protocol"
	"chat-relay/runtime"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"
)

const defaultSearchLimit = 20

// Server wires the websocket endpoint and the read-only REST surface onto
// one chi router.
type Server struct {
	log              *slog.Logger
	broker           *runtime.Broker
	repository       contract.IMessageRepository
	index            contract.ISearchIndex
	stats            *observability.Stats
	connectionBuffer int
}

func New(log *slog.Logger, broker *runtime.Broker, repository contract.IMessageRepository,
	index contract.ISearchIndex, stats *observability.Stats, connectionBuffer int) *Server {
	return &Server{
		log:              log,
		broker:           broker,
		repository:       repository,
		index:            index,
		stats:            stats,
		connectionBuffer: connectionBuffer,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/ws", s.handleWebsocket)
	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/users", s.handleUsers)
	r.Get("/messages/{room}", s.handleMessages)
	r.Get("/messages/{room}/search", s.handleSearch)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Latest())
}

func (s *Server) handleUsers(w http.ResponseWriter, _ *http.Request) {
	profiles := lo.Map(s.broker.Profiles(), func(p domain.Profile, _ int) protocol.WireProfile {
		return protocol.WireProfile{ID: string(p.ConnectionID), DisplayName: p.DisplayName}
	})
	writeJSON(w, http.StatusOK, profiles)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	room := domain.RoomID(chi.URLParam(r, "room"))
	messages, err := s.repository.ListByRoom(room)
	if err != nil {
		s.log.Error("History fetch failed", "room", room, "error", err)
		writeError(w, http.StatusInternalServerError, "history fetch failed")
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(messages, func(m domain.Message, _ int) protocol.WireMessage {
		return protocol.ToWireMessage(m)
	}))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	room := domain.RoomID(chi.URLParam(r, "room"))
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	ids, err := s.index.Search(r.Context(), room, query, limit)
	if err != nil {
		s.log.Error("Search failed", "room", room, "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	results := make([]protocol.WireMessage, 0, len(ids))
	for _, id := range ids {
		message, err := s.repository.Get(id)
		if errors.Is(err, errs.ErrMessageNotFound) {
			// The index can trail the log right after a delete.
			continue
		}
		if err != nil {
			s.log.Error("Message lookup failed", "message_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "search failed")
			return
		}
		results = append(results, protocol.ToWireMessage(message))
	}
	writeJSON(w, http.StatusOK, results)
}

// Serve runs the HTTP server until ctx is cancelled, then drains it.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
