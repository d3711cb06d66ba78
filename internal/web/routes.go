package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/evoface/internal/web/handlers"
	"github.com/kozaktomas/evoface/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	detectionsHandler := handlers.NewDetectionsHandler(s.pipeline, s.logger)
	employeesHandler := handlers.NewEmployeesHandler(s.pipeline, s.logger)
	punchesHandler := handlers.NewPunchesHandler(s.pipeline, s.logger)
	attendanceHandler := handlers.NewAttendanceHandler(s.pipeline, s.logger)
	configHandler := handlers.NewConfigHandler(s.config, s.pipeline)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAPIKey(s.config.Web.APIKey))

		// Capture devices
		r.Post("/detections", detectionsHandler.Create)

		// Employees
		r.Get("/employees", employeesHandler.List)
		r.Post("/employees", employeesHandler.Create)
		r.Delete("/employees/{id}", employeesHandler.Delete)
		r.Get("/employees/{id}/attendance", employeesHandler.Attendance)

		// Punches
		r.Get("/punches/recent", punchesHandler.Recent)
		r.Get("/punches/unmatched", punchesHandler.Unmatched)
		r.Post("/punches/{id}/resolve", punchesHandler.Resolve)

		// Attendance
		r.Post("/attendance/finalize", attendanceHandler.Finalize)

		// Config
		r.Get("/config", configHandler.Get)
	})
}
