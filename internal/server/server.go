package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/go-github/v59/github"
	"github.com/mcmetrics/plugin-tracker/internal/auth"
	"github.com/mcmetrics/plugin-tracker/internal/config"
	"github.com/mcmetrics/plugin-tracker/internal/store"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

type Server struct {
	router      chi.Router
	log         *logrus.Logger
	store       store.Store
	auth        auth.Authenticator
	ghClient    *github.Client
	ghSemaphore *semaphore.Weighted
	storage     *s3.Client
	config      *config.ServerConfig
	cache       *cache.Cache
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONError(w, r, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{
		"service": "plugin-tracker",
		"stage":   s.config.Stage,
		"version": s.config.Version,
	})
}

func New(log *logrus.Logger, st store.Store, authn auth.Authenticator, ghClient *github.Client, storage *s3.Client, serverCfg *config.ServerConfig) *Server {
	router := chi.NewRouter()
	server := &Server{
		router:      router,
		log:         log,
		store:       st,
		auth:        authn,
		ghClient:    ghClient,
		ghSemaphore: semaphore.NewWeighted(2),
		storage:     storage,
		config:      serverCfg,
		cache:       cache.New(5*time.Minute, 10*time.Minute),
	}
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(server.logMiddleware)
	router.Use(server.recoverMiddleware)

	router.Use(middleware.Timeout(time.Minute))

	router.NotFound(server.notFoundHandler)
	router.MethodNotAllowed(server.methodNotAllowedHandler)

	router.Get("/", server.indexHandler)

	router.Route("/plugins", func(r chi.Router) {
		r.With(server.cacheMiddleware).Get("/", server.listPlugins)
		r.With(server.authMiddleware).Post("/", server.createPlugin)

		r.Route("/{id}", func(r chi.Router) {
			r.With(server.cacheMiddleware).Group(func(r chi.Router) {
				r.Get("/", server.getPlugin)
				r.Get("/updates", server.listUpdates)
			})
			r.Get("/download", server.downloadPlugin)

			r.With(server.authMiddleware).Group(func(r chi.Router) {
				r.Put("/", server.updatePlugin)
				r.Delete("/", server.deletePlugin)
				r.Post("/updates", server.appendUpdate)
				r.Post("/sync", server.syncPlugin)
			})
		})
	})

	return server
}
