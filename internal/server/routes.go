// Package server wires HTTP handlers into a ServeMux for the GeoChat
// application via routing helpers.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all application routes.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", HealthHandler)
	mux.HandleFunc("GET /healthz", HealthHandler)
	mux.HandleFunc("GET /ws", s.WebSocketHandler)

	mux.HandleFunc("POST /api/session/join", s.JoinHandler)
	mux.HandleFunc("GET /api/rooms/{venueID}/members", s.MembersHandler)
	mux.HandleFunc("GET /api/places", s.PlacesHandler)
	mux.HandleFunc("GET /api/places/{id}", s.PlaceHandler)
	mux.HandleFunc("GET /qr/{file}", s.QRHandler)

	mux.HandleFunc("GET /api/admin/ping", s.requireAdmin(s.AdminPingHandler))
	mux.HandleFunc("GET /api/admin/places", s.requireAdmin(s.PlacesHandler))
	mux.HandleFunc("POST /api/admin/places", s.requireAdmin(s.AdminCreatePlaceHandler))
	mux.HandleFunc("DELETE /api/admin/places/{id}", s.requireAdmin(s.AdminDeletePlaceHandler))

	mux.HandleFunc("/api/", NotFoundHandler)
	mux.HandleFunc("/qr/", NotFoundHandler)
	return mux
}
