// Package httpapi wires the node agent's HTTP request surface (§6) onto
// a chi router, grounded on the teacher's handlers package: the same
// RouterDependencies-struct constructor pattern, the same
// middleware.Logger/middleware.Recoverer pair, and the same
// writeJSON/writeError helper split so every handler stays a thin
// translation layer between HTTP and the domain packages underneath.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pyrohost/pyro-node-agent/internal/eggs"
	"github.com/pyrohost/pyro-node-agent/internal/eventbus"
	"github.com/pyrohost/pyro-node-agent/internal/fileservice"
	"github.com/pyrohost/pyro-node-agent/internal/instance"
	"github.com/pyrohost/pyro-node-agent/internal/lifecycle"
)

// RouterDependencies groups every dependency the router and its handlers
// need. Adding a new handler means adding one field here and one route
// below, nothing else - the same contract the teacher's router.go
// documents for its own RouterDependencies.
type RouterDependencies struct {
	Logger    *slog.Logger
	Eggs      *eggs.Registry
	Configs   *instance.Store
	Lifecycle *lifecycle.Manager
	Files     *fileservice.Service
	Bus       *eventbus.Bus
	StartedAt time.Time
}

// NewRouter constructs the chi multiplexer, attaches middleware,
// constructs all handlers with their dependencies, and registers every
// route. It returns a plain http.Handler so main.go has no chi import.
func NewRouter(deps RouterDependencies) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	health := &healthHandler{eggs: deps.Eggs, lifecycle: deps.Lifecycle, startedAt: deps.StartedAt}
	eggsH := &eggsHandler{eggs: deps.Eggs, logger: deps.Logger}
	servers := &serversHandler{lifecycle: deps.Lifecycle, configs: deps.Configs, logger: deps.Logger}
	files := &filesHandler{files: deps.Files, logger: deps.Logger}
	ws := &wsHandler{bus: deps.Bus, lifecycle: deps.Lifecycle, logger: deps.Logger}

	router.Get("/health", health.Health)

	router.Route("/api", func(api chi.Router) {
		api.Get("/eggs", eggsH.List)
		api.Get("/eggs/{eggId}", eggsH.Get)
		api.Put("/eggs/{eggId}", eggsH.Put)
		api.Delete("/eggs/{eggId}", eggsH.Delete)

		api.Route("/servers/{serverId}", func(s chi.Router) {
			s.Post("/configure", servers.Configure)
			s.Post("/install", servers.Install)
			s.Post("/reinstall", servers.Reinstall)
			s.Post("/start", servers.Start)
			s.Post("/stop", servers.Stop)
			s.Post("/restart", servers.Restart)
			s.Post("/kill", servers.Kill)
			s.Delete("/", servers.Delete)
			s.Post("/command", servers.SendCommand)
			s.Get("/stats", servers.GetStats)
			s.Get("/logs", servers.GetLogs)
			s.Get("/ws", ws.Serve)

			s.Get("/files", files.List)
			s.Get("/files/content", files.Read)
			s.Put("/files/content", files.Write)
			s.Patch("/files/content", files.Update)
			s.Delete("/files/content", files.Delete)
			s.Post("/files/copy", files.Copy)
			s.Post("/files/rename", files.Rename)
		})
	})

	return router
}

// imageCount returns the number of distinct image references currently
// resolved across every loaded egg - §12's chosen definition for the
// health endpoint's "images" count.
func imageCount(registry *eggs.Registry) int {
	seen := make(map[string]struct{})
	for _, egg := range registry.List() {
		for _, ref := range egg.DockerImages {
			seen[ref] = struct{}{}
		}
	}
	return len(seen)
}
