/**
* Copyright 2018 Comcast Cable Communications Management, LLC
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
* http://www.apache.org/licenses/LICENSE-2.0
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
 */

// Package admin serves the cache's operational HTTP surface: a liveness
// ping, a JSON dump of the per-namespace local-tier statistics, and a JSON
// dump of the running configuration, at the paths named by
// config.AdminConfig. Routes are registered on a *mux.Router the way the
// teacher registers origin handler paths, one route per path/verb pair.
package admin

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/tiercache/tiercache/internal/config"
	"github.com/tiercache/tiercache/internal/log"
	"github.com/tiercache/tiercache/internal/metrics"
	"github.com/tiercache/tiercache/tier"
)

// NewRouter builds the admin router, wiring cfg's configured paths against
// coordinator for the stats handler. A nil cfg falls back to
// config.NewAdminConfig()'s default paths.
func NewRouter(coord *tier.Coordinator, cfg *config.AdminConfig) *mux.Router {
	if cfg == nil {
		cfg = config.NewAdminConfig()
	}

	r := mux.NewRouter()
	r.Handle(cfg.PingHandlerPath, pingHandler()).Methods(http.MethodGet)
	r.Handle(cfg.StatsHandlerPath, statsHandler(coord)).Methods(http.MethodGet)
	r.Handle(cfg.ConfigHandlerPath, configHandler()).Methods(http.MethodGet)
	return r
}

// ListenAndServeAdmin starts a dedicated HTTP listener for the admin
// surface, wrapping the router in gorilla/handlers' combined access log the
// way the teacher wraps its proxy routes.
func ListenAndServeAdmin(coord *tier.Coordinator, cfg *config.AdminConfig) error {
	if cfg == nil {
		cfg = config.NewAdminConfig()
	}
	r := NewRouter(coord, cfg)
	addr := cfg.ListenAddress + ":" + strconv.Itoa(cfg.ListenPort)
	log.Info("starting admin HTTP listener", log.Pairs{"address": addr})
	return http.ListenAndServe(addr, handlers.CombinedLoggingHandler(logWriter{}, r))
}

func pingHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})
}

func statsHandler(coord *tier.Coordinator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats := coord.Stats()
		for _, s := range stats {
			metrics.LocalEntries.WithLabelValues(s.Namespace).Set(float64(s.LocalEntries))
		}
		writeJSON(w, stats)
	})
}

func configHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, config.Config)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Warn("admin: failed to encode JSON response", log.Pairs{"detail": err.Error()})
	}
}

// logWriter adapts internal/log to gorilla/handlers' io.Writer-based access
// log so the admin surface's request log shares the engine's structured
// logger rather than writing to a second, unconfigured stream.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	log.Info("admin: access", log.Pairs{"line": string(p)})
	return len(p), nil
}
