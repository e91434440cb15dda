// Package server exposes HTTP handlers, including WebSocket upgrades, the
// admission API, venue administration, and health checks.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"

	"github.com/Tyrowin/geochat/internal/logger"
	"github.com/Tyrowin/geochat/internal/session"
	"github.com/Tyrowin/geochat/internal/venue"
)

const (
	maxJSONBody = 16 << 10
	qrSize      = 512
)

// Server bundles the gateway with the HTTP API around it.
type Server struct {
	cfg      *Config
	registry *session.Registry
	venues   venue.Store
	hub      *Hub
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// New creates a Server and starts its hub. Call Shutdown to stop it.
func New(cfg *Config, registry *session.Registry, venues venue.Store, log *slog.Logger) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	log = logger.OrDefault(log)
	origins := newOriginPolicy(cfg.AllowedOrigins, log)

	s := &Server{
		cfg:      cfg,
		registry: registry,
		venues:   venues,
		hub:      NewHub(log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		log: log,
	}
	go s.hub.Run()
	return s
}

// Hub returns the server's hub.
func (s *Server) Hub() *Hub { return s.hub }

type joinRequest struct {
	PlaceID   string `json:"placeId"`
	Alias     string `json:"alias"`
	Phone     string `json:"phone"`
	FunFact   string `json:"funFact"`
	Gender    string `json:"gender"`
	AvatarURL string `json:"avatarUrl"`
}

type createPlaceRequest struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Radius  float64 `json:"radius"`
}

type createPlaceResponse struct {
	Place   venue.Venue `json:"place"`
	JoinURL string      `json:"joinUrl"`
	QRURL   string      `json:"qrUrl"`
}

// WebSocketHandler upgrades the request and hands the connection to the hub,
// which launches its pumps. The client authenticates over the socket.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", logger.Remote(r.RemoteAddr), logger.Error(err))
		return
	}

	client := NewClient(conn, s.hub, s.registry, s.cfg, r.RemoteAddr, s.log)
	if !s.hub.registerClient(client) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
	}
}

// JoinHandler admits a participant to a venue and returns the session token.
func (s *Server) JoinHandler(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := s.registry.Admit(r.Context(), req.PlaceID, session.Profile{
		DisplayName:   req.Alias,
		ContactHandle: req.Phone,
		GenderTag:     req.Gender,
		FunFact:       req.FunFact,
		AvatarRef:     req.AvatarURL,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"sessionId": id})
	case errors.Is(err, session.ErrInvalidVenue):
		writeError(w, http.StatusBadRequest, "Invalid place")
	case errors.Is(err, session.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("admit failed", logger.VenueID(req.PlaceID), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// MembersHandler lists the bound participants of a venue.
func (s *Server) MembersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.ListByVenue(r.PathValue("venueID")))
}

// PlacesHandler lists all venues.
func (s *Server) PlacesHandler(w http.ResponseWriter, r *http.Request) {
	venues, err := s.venues.List(r.Context())
	if err != nil {
		s.log.Error("list venues failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, venues)
}

// PlaceHandler returns one venue.
func (s *Server) PlaceHandler(w http.ResponseWriter, r *http.Request) {
	v, err := s.venues.Resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, venue.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Place not found")
			return
		}
		s.log.Error("resolve venue failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// QRHandler renders the venue's join link as a PNG.
func (s *Server) QRHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := strings.CutSuffix(r.PathValue("file"), ".png")
	if !ok || id == "" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	v, err := s.venues.Resolve(r.Context(), id)
	if err != nil {
		if errors.Is(err, venue.ErrNotFound) {
			http.Error(w, "Unknown place", http.StatusNotFound)
			return
		}
		s.log.Error("resolve venue failed", logger.Error(err))
		http.Error(w, "QR error", http.StatusInternalServerError)
		return
	}

	png, err := qrcode.Encode(joinURL(s.requestBaseURL(r), v.ID), qrcode.Medium, qrSize)
	if err != nil {
		s.log.Error("qr encode failed", logger.VenueID(v.ID), logger.Error(err))
		http.Error(w, "QR error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// AdminPingHandler lets the admin page validate its key.
func (s *Server) AdminPingHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// AdminCreatePlaceHandler adds a venue with a slug id derived from its name.
func (s *Server) AdminCreatePlaceHandler(w http.ResponseWriter, r *http.Request) {
	var req createPlaceRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	v, err := s.venues.Create(r.Context(), venue.Venue{
		Name:    req.Name,
		Address: req.Address,
		Lat:     req.Lat,
		Lng:     req.Lng,
		Radius:  req.Radius,
	})
	if err != nil {
		if errors.Is(err, venue.ErrInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("create venue failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info("venue created", logger.VenueID(v.ID), slog.String("name", v.Name))
	writeJSON(w, http.StatusOK, createPlaceResponse{
		Place:   v,
		JoinURL: joinURL(s.cfg.BaseURL, v.ID),
		QRURL:   fmt.Sprintf("%s/qr/%s.png", s.cfg.BaseURL, url.PathEscape(v.ID)),
	})
}

// AdminDeletePlaceHandler removes a venue. Live sessions keep the copy
// they were admitted with.
func (s *Server) AdminDeletePlaceHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.venues.Delete(r.Context(), id); err != nil {
		if errors.Is(err, venue.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		s.log.Error("delete venue failed", logger.VenueID(id), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.log.Info("venue deleted", logger.VenueID(id))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// requireAdmin guards next with the shared admin key, read from the
// X-Admin-Key header or the key query parameter.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminKey == "" {
			writeError(w, http.StatusInternalServerError, "ADMIN_KEY not set on server")
			return
		}
		key := r.Header.Get("X-Admin-Key")
		if key == "" {
			key = r.URL.Query().Get("key")
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.AdminKey)) != 1 {
			s.log.Warn("admin request rejected", logger.Remote(r.RemoteAddr), slog.String("path", r.URL.Path))
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "GeoChat server is running!")
}

// NotFoundHandler answers unknown API paths with a JSON error.
func NotFoundHandler(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}

func (s *Server) requestBaseURL(r *http.Request) string {
	if s.cfg.BaseURL != "" {
		return s.cfg.BaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme, _, _ = strings.Cut(proto, ",")
		scheme = strings.TrimSpace(scheme)
	}
	return scheme + "://" + r.Host
}

func joinURL(base, venueID string) string {
	return base + "/join.html?place=" + url.QueryEscape(venueID)
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
