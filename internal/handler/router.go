package handler

import (
	"github.com/gin-gonic/gin"

	internalmiddleware "github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// RegisterTimetableRoutes mounts the timetable API on group. Every route needs a valid token;
// routes that change stored data also need the ADMIN or SCHEDULER role.
func RegisterTimetableRoutes(group *gin.RouterGroup, h *TimetableHandler, auth gin.HandlerFunc) {
	writers := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleScheduler)

	timetable := group.Group("/timetable")
	timetable.Use(auth)

	timetable.POST("/generate", writers, h.Generate)
	timetable.POST("/preview", writers, h.Preview)
	timetable.POST("/proposals/:id/commit", writers, h.Commit)
	timetable.GET("/runs", h.ListRuns)
	timetable.GET("/runs/:id", h.GetRun)
	timetable.GET("/schedule", h.Schedule)
	timetable.DELETE("/schedule", writers, h.ClearSchedule)
	timetable.GET("/schedule/export", h.Export)
}

// RegisterOpsRoutes mounts health, readiness and Prometheus endpoints at the root.
func RegisterOpsRoutes(r gin.IRoutes, h *MetricsHandler, metricsEnabled bool) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	if metricsEnabled {
		r.GET("/metrics", h.Prometheus)
	}
}
