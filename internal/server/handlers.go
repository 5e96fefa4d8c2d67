package server

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"ecogateway/internal/ecosystem"
	"ecogateway/internal/middleware"
	"ecogateway/internal/registry"
	"ecogateway/pkg/errors"
)

// servicesResponse is the read-only registry export
type servicesResponse struct {
	Services  []serviceLinks        `json:"services"`
	Contracts *registry.ChainConfig `json:"contracts,omitempty"`
}

// serviceLinks is a descriptor with its endpoints resolved to absolute URLs
type serviceLinks struct {
	registry.ServiceDescriptor
	Links map[string]string `json:"links,omitempty"`
}

func newServiceLinks(d registry.ServiceDescriptor) serviceLinks {
	links := make(map[string]string)
	for name, path := range map[string]string{
		"health":    d.HealthPath,
		"metrics":   d.MetricsPath,
		"info":      d.InfoPath,
		"docs":      d.DocsPath,
		"dashboard": d.DashboardPath,
	} {
		if path != "" {
			links[name] = d.Endpoint(path)
		}
	}
	return serviceLinks{ServiceDescriptor: d, Links: links}
}

// handleHealth serves the aggregate; 503 when the ecosystem is down
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.Client().CheckHealth(r.Context())

	status := http.StatusOK
	if health.Overall == ecosystem.StatusDown {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handleServiceHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Client().CheckService(r.Context(), r.PathValue("key")))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Client().Metrics(r.Context()))
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	reg := s.Client().Registry()

	resp := servicesResponse{Services: make([]serviceLinks, 0, reg.Len())}
	for _, d := range reg.Services() {
		resp.Services = append(resp.Services, newServiceLinks(d))
	}
	if chain, ok := reg.Chain(); ok {
		resp.Contracts = &chain
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleService(w http.ResponseWriter, r *http.Request) {
	d, err := s.Client().Registry().GetService(r.PathValue("key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newServiceLinks(d))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a structured error onto its HTTP status
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := map[string]any{
		"error": errors.Message(err),
		"type":  errors.TypeOf(err),
	}

	var gwErr *errors.Error
	if stderrors.As(err, &gwErr) {
		status = gwErr.HTTPStatusCode()
		if len(gwErr.Details) > 0 {
			body["details"] = gwErr.Details
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"id", middleware.RequestIDFromContext(r.Context()),
			"error", err,
		)
	}
	writeJSON(w, status, body)
}
