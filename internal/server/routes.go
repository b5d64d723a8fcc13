package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Signed asset fetch
	mux.HandleFunc("/assets/", s.app.AssetHandler.ServeAssetHandler)

	// API routes - Clients
	mux.HandleFunc("/api/clients", s.handleClientsRoute)
	mux.HandleFunc("/api/clients/", s.handleClientRoutes)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleClientsRoute routes /api/clients by method
func (s *Server) handleClientsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.ClientHandler.ListClientsHandler(w, r)
	case "POST":
		s.app.ClientHandler.CreateClientHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleClientRoutes routes /api/clients/{id}
func (s *Server) handleClientRoutes(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimPrefix(r.URL.Path, "/api/clients/")
	if clientID == "" || strings.Contains(clientID, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case "GET":
		s.app.ClientHandler.GetClientHandler(w, r, clientID)
	case "PUT":
		s.app.ClientHandler.UpdateClientHandler(w, r, clientID)
	case "DELETE":
		s.app.ClientHandler.DeleteClientHandler(w, r, clientID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsRoute routes /api/jobs by method
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.JobHandler.ListJobsHandler(w, r)
	case "POST":
		s.app.JobHandler.CreateJobHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobRoutes routes /api/jobs/{id} and subpaths
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")

	// POST /api/jobs/{id}/complete - backend completion webhook
	if r.Method == "POST" && strings.HasSuffix(path, "/complete") {
		jobID := strings.TrimSuffix(path, "/complete")
		s.app.JobHandler.CompleteJobHandler(w, r, jobID)
		return
	}

	// GET /api/jobs/{id}/export/summary - text-only summary PDF
	if r.Method == "GET" && strings.HasSuffix(path, "/export/summary") {
		jobID := strings.TrimSuffix(path, "/export/summary")
		s.app.ExportHandler.ExportSummaryHandler(w, r, jobID)
		return
	}

	// GET /api/jobs/{id}/export - full report PDF
	if r.Method == "GET" && strings.HasSuffix(path, "/export") {
		jobID := strings.TrimSuffix(path, "/export")
		s.app.ExportHandler.ExportJobHandler(w, r, jobID)
		return
	}

	jobID := path
	if jobID == "" || strings.Contains(jobID, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case "GET":
		s.app.JobHandler.GetJobHandler(w, r, jobID)
	case "DELETE":
		s.app.JobHandler.DeleteJobHandler(w, r, jobID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
