// Package api serves the calendar entries over http.
//
// There are no accounts: the calendar key sent with each request is the only
// thing that picks out (and grants access to) a calendar.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	lcerrs "github.com/jdholdren/linkcal/internal/errors"
	"github.com/jdholdren/linkcal/internal/linkcal"
	"github.com/jdholdren/linkcal/internal/serverutil"
)

type (
	// Server handles reading and writing the entries of calendars.
	Server struct {
		*http.Server

		repo linkcal.Repository
	}

	ServerConfig struct {
		Port       int
		CorsOrigin string
	}
)

// The routes are served both at the root and under /api, where the browser
// client expects them.
var routePrefixes = []string{"", "/api"}

func NewServer(config ServerConfig, repo linkcal.Repository) *Server {
	r := serverutil.ErrRouter{Router: mux.NewRouter()}

	srvr := Server{
		repo: repo,
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{config.CorsOrigin}),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"content-type"}),
			)(serverutil.NoStoreMiddleware(r)),
		},
	}

	r.Use(serverutil.AccessLogMiddleware) // Log everything
	r.NotFoundHandler = serverutil.HandlerFuncE(func(w http.ResponseWriter, r *http.Request) error {
		return lcerrs.E(http.StatusNotFound, "Not found.")
	})
	r.MethodNotAllowedHandler = serverutil.HandlerFuncE(func(w http.ResponseWriter, r *http.Request) error {
		return lcerrs.E(http.StatusMethodNotAllowed, "Method not allowed.")
	})

	for _, prefix := range routePrefixes {
		r.HandleFuncE(prefix+"/entries", srvr.getEntries).Methods(http.MethodGet)
		r.HandleFuncE(prefix+"/entries", srvr.postEntries).Methods(http.MethodPost)
		r.HandleFuncE(prefix+"/export", srvr.getExport).Methods(http.MethodGet)
		r.HandleFuncE(prefix+"/health", srvr.getHealth).Methods(http.MethodGet)
	}

	slog.Debug("configured entries server", "port", config.Port)

	return &srvr
}
