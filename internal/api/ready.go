package api

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Check statuses.
const (
	StatusOK          = "ok"
	StatusNotReady    = "not_ready"
	StatusUnavailable = "unavailable"
	StatusDisabled    = "disabled"
)

const readyProbeTimeout = 2 * time.Second

type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
	Error    string `json:"error,omitempty"`
}

type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckStatus `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

// sinkCheck turns a probe result into a status. A sink that is down counts
// against readiness only when it is required.
func sinkCheck(configured, up, required bool, err error) CheckStatus {
	switch {
	case !configured:
		return CheckStatus{Status: StatusDisabled, Optional: !required}
	case up:
		return CheckStatus{Status: StatusOK, Optional: !required}
	}
	c := CheckStatus{Status: StatusUnavailable, Optional: true}
	if required {
		c = CheckStatus{Status: StatusNotReady}
	}
	if err != nil {
		c.Error = err.Error()
	}
	return c
}

func (s *Server) readiness(ctx context.Context) ReadinessResponse {
	checks := map[string]CheckStatus{
		"validator": {Status: StatusOK},
	}

	var pgErr error
	pgUp := false
	if s.history != nil {
		pctx, cancel := context.WithTimeout(ctx, readyProbeTimeout)
		pgErr = s.history.Ping(pctx)
		cancel()
		pgUp = pgErr == nil
	}
	checks["postgres"] = sinkCheck(s.history != nil, pgUp, s.requirePostgres, pgErr)

	mqttUp := s.broker != nil && s.broker.IsConnected()
	checks["mqtt"] = sinkCheck(s.broker != nil, mqttUp, s.requireMQTT, nil)

	resp := ReadinessResponse{Ready: true, Checks: checks}
	var failing []string
	for name, c := range checks {
		if c.Status == StatusNotReady || (s.requiredButDisabled(name, c)) {
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		resp.Ready = false
		resp.NotReadyMsg = "not ready: " + strings.Join(failing, ", ")
	}
	return resp
}

// requiredButDisabled catches a sink marked required that was never wired.
func (s *Server) requiredButDisabled(name string, c CheckStatus) bool {
	if c.Status != StatusDisabled {
		return false
	}
	return (name == "postgres" && s.requirePostgres) || (name == "mqtt" && s.requireMQTT)
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	resp := s.readiness(r.Context())
	s.metrics.setSinks(resp.Checks["postgres"].Status == StatusOK, resp.Checks["mqtt"].Status == StatusOK)

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
