// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/briefrelay/internal/log"
)

func init() {
	viper.SetDefault("metrics.address", "")
}

// WireSet provides the operational http server.
var WireSet = wire.NewSet(
	OptionsFromViper,
	NewServer,
)

// Options configure the operational http server.
type Options struct {
	// Address to listen on. The server is disabled when empty.
	Address string
}

// OptionsFromViper reads `metrics.address`.
func OptionsFromViper() Options {
	return Options{
		Address: viper.GetString("metrics.address"),
	}
}

// NewRouter serves prometheus metrics at /metrics and a liveness probe at
// /healthz.
func NewRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok\n")) // nolint:errcheck
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// Server is the operational http server.
type Server struct {
	http *http.Server
}

// NewServer creates a Server. It does not listen until ListenAndServe is
// called.
func NewServer(options Options) *Server {
	if options.Address == "" {
		return &Server{}
	}

	return &Server{
		http: &http.Server{
			Addr:              options.Address,
			Handler:           NewRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe blocks until the server is shut down. It returns
// immediately, if no address is configured.
func (s *Server) ListenAndServe() error {
	if s.http == nil {
		log.Debug().Msg("metrics server disabled")
		return nil
	}

	log.Info().
		Str("address", s.http.Addr).
		Msg("starting metrics server")

	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}

	return s.http.Shutdown(ctx)
}
