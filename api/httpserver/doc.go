// Package httpserver provides the base HTTP server shared by the auction
// service binaries.
//
// BaseServer wires the chi router with standard middleware, health and drain
// endpoints (/livez, /readyz, /drain, /undrain), an optional pprof mount, an
// optional metrics listener, and graceful shutdown. Components contribute
// their endpoints through the RouteRegistrar interface:
//
//	func (h *Handler) RegisterRoutes(r chi.Router) {
//	    r.Post("/auctions", h.handleCreateAuction)
//	}
//
//	srv, err := httpserver.New(cfg, handler)
//	srv.RunInBackground()
//	defer srv.Shutdown()
package httpserver
