package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health and version
	mux.HandleFunc("/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	// API routes - Programs
	mux.HandleFunc("/api/programs", s.handleProgramsRoute)  // GET (list), POST (create)
	mux.HandleFunc("/api/programs/", s.handleProgramRoutes) // GET/PUT/DELETE /{id}, POST /{id}/risks, POST /{id}/milestones

	// API routes - Risks and milestones by id
	mux.HandleFunc("/api/risks/", s.handleRiskRoutes)           // PUT/DELETE /{id}
	mux.HandleFunc("/api/milestones/", s.handleMilestoneRoutes) // PUT/DELETE /{id}

	// API routes - Strategic objectives
	mux.HandleFunc("/api/strategic-objectives", s.handleObjectivesRoute) // GET (list), POST (create)

	// API routes - Query (retrieval-backed portfolio questions)
	mux.HandleFunc("/api/query", s.app.QueryHandler.QueryHandler)
	mux.HandleFunc("/api/query/stream", s.app.QueryHandler.StreamQueryHandler)
	mux.HandleFunc("/api/query/ws", s.app.QueryHandler.WebSocketQueryHandler)
	mux.HandleFunc("/api/insights/proactive", s.app.QueryHandler.ProactiveInsightHandler)
	mux.HandleFunc("/api/summary", s.app.QueryHandler.SummaryHandler)

	// API routes - Chat sessions
	mux.HandleFunc("/api/sessions", s.app.SessionsHandler.ListSessionsHandler)
	mux.HandleFunc("/api/sessions/", s.handleSessionRoutes) // GET/DELETE /{id}

	// API routes - Index management
	mux.HandleFunc("/api/index/stats", s.app.IndexHandler.StatsHandler)
	mux.HandleFunc("/api/index/rebuild", s.app.IndexHandler.RebuildHandler)

	// API routes - Tracker sync
	mux.HandleFunc("/api/sync/trigger", s.app.SyncHandler.TriggerSyncHandler)
	mux.HandleFunc("/api/sync/runs", s.app.SyncHandler.ListRunsHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleProgramsRoute routes /api/programs requests (list and create)
func (s *Server) handleProgramsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.ProgramsHandler.ListProgramsHandler(w, r)
	case "POST":
		s.app.ProgramsHandler.CreateProgramHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleProgramRoutes routes /api/programs/{id} requests and the child
// collections /api/programs/{id}/risks and /api/programs/{id}/milestones
func (s *Server) handleProgramRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")

	// POST /api/programs/{id}/risks
	if r.Method == "POST" && strings.HasSuffix(path, "/risks") {
		s.app.ProgramsHandler.CreateRiskHandler(w, r)
		return
	}

	// POST /api/programs/{id}/milestones
	if r.Method == "POST" && strings.HasSuffix(path, "/milestones") {
		s.app.ProgramsHandler.CreateMilestoneHandler(w, r)
		return
	}

	switch r.Method {
	case "GET":
		s.app.ProgramsHandler.GetProgramHandler(w, r)
	case "PUT":
		s.app.ProgramsHandler.UpdateProgramHandler(w, r)
	case "DELETE":
		s.app.ProgramsHandler.DeleteProgramHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRiskRoutes routes /api/risks/{id} requests
func (s *Server) handleRiskRoutes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "PUT":
		s.app.ProgramsHandler.UpdateRiskHandler(w, r)
	case "DELETE":
		s.app.ProgramsHandler.DeleteRiskHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleMilestoneRoutes routes /api/milestones/{id} requests
func (s *Server) handleMilestoneRoutes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "PUT":
		s.app.ProgramsHandler.UpdateMilestoneHandler(w, r)
	case "DELETE":
		s.app.ProgramsHandler.DeleteMilestoneHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleObjectivesRoute routes /api/strategic-objectives requests (list and create)
func (s *Server) handleObjectivesRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.ObjectivesHandler.ListObjectivesHandler(w, r)
	case "POST":
		s.app.ObjectivesHandler.CreateObjectiveHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessionRoutes routes /api/sessions/{id} requests
func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.SessionsHandler.GetSessionHandler(w, r)
	case "DELETE":
		s.app.SessionsHandler.DeleteSessionHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
