package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/signalsfoundry/observatory-remote/internal/capture"
	"github.com/signalsfoundry/observatory-remote/internal/device"
	"github.com/signalsfoundry/observatory-remote/internal/logging"
	"github.com/signalsfoundry/observatory-remote/internal/observability"
)

type statusResponse struct {
	State      string    `json:"state"`
	CanCapture bool      `json:"can_capture"`
	Holders    []string  `json:"gate_holders"`
	SessionID  string    `json:"session_id,omitempty"`
	Frames     int       `json:"frames"`
	Countdown  int       `json:"countdown_s"`
	LastImage  time.Time `json:"last_image_at"`
}

type deviceResponse struct {
	Kind      device.Kind    `json:"kind"`
	Connected bool           `json:"connected"`
	Busy      bool           `json:"busy"`
	UpdatedAt time.Time      `json:"updated_at"`
	Fields    map[string]any `json:"fields"`
}

// newRouter serves Prometheus metrics next to a read-only view of the
// capture orchestrator and the telemetry store.
func newRouter(collector *observability.Collector, orch *capture.Orchestrator, store *device.Store) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", collector.Handler()).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")

	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		resp := statusResponse{
			State:      orch.State().String(),
			CanCapture: orch.Gate().CanCapture(),
			Holders:    orch.Gate().Holders(),
		}
		if sess, ok := orch.Session(); ok {
			resp.SessionID = sess.ID
			resp.Frames = sess.Frames
			resp.Countdown = sess.CountdownSec
		}
		if img, ok := orch.LastImage(); ok {
			resp.LastImage = img.ReceivedAt
		}
		writeJSON(w, http.StatusOK, resp)
	}).Methods("GET")

	r.HandleFunc("/devices/{kind}", func(w http.ResponseWriter, req *http.Request) {
		kind, err := device.ParseKind(mux.Vars(req)["kind"])
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		snap := store.Snapshot(kind)
		writeJSON(w, http.StatusOK, deviceResponse{
			Kind:      kind,
			Connected: snap.Connected(),
			Busy:      snap.Busy(),
			UpdatedAt: snap.UpdatedAt,
			Fields:    snap.Fields,
		})
	}).Methods("GET")
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func serveHTTP(addr string, handler http.Handler, log logging.Logger) *http.Server {
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "status server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving metrics and status", logging.String("addr", addr))
	return srv
}
