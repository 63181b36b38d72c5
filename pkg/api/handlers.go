package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zshan-dev/agent-arena/pkg/models"
	"github.com/zshan-dev/agent-arena/pkg/scenario"
)

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	if _, err := s.repo.Count(c.Request.Context()); err != nil {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// scenarioInfo is the dashboard-facing scenario listing entry.
type scenarioInfo struct {
	Type                   models.ScenarioType  `json:"type"`
	Description            string               `json:"description"`
	DefaultProfiles        []models.ProfileName `json:"defaultProfiles"`
	DefaultDurationSeconds int                  `json:"defaultDurationSeconds"`
}

func (s *Server) handleListScenarios(c *gin.Context) {
	all := scenario.All()
	infos := make([]scenarioInfo, 0, len(all))
	for _, sc := range all {
		infos = append(infos, scenarioInfo{
			Type:                   sc.Type,
			Description:            sc.Description,
			DefaultProfiles:        sc.DefaultProfiles,
			DefaultDurationSeconds: sc.DefaultDurationSeconds,
		})
	}
	c.JSON(http.StatusOK, gin.H{"scenarios": infos, "count": len(infos)})
}

func (s *Server) handleCreateTest(c *gin.Context) {
	var req models.CreateTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Message: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	run, err := s.tests.CreateTest(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleListTests(c *gin.Context) {
	filters := models.TestRunFilters{
		Status:       models.TestStatus(c.Query("status")),
		ScenarioType: models.ScenarioType(c.Query("scenarioType")),
	}
	runs, err := s.tests.ListTests(c.Request.Context(), filters)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tests": runs, "count": len(runs)})
}

func (s *Server) handleGetTest(c *gin.Context) {
	run, err := s.tests.GetTest(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleStartTest(c *gin.Context) {
	run, err := s.tests.StartTest(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleStopTest(c *gin.Context) {
	run, err := s.tests.StopTest(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleDeleteTest(c *gin.Context) {
	if err := s.tests.DeleteTest(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "test deleted"})
}

func (s *Server) handleGetLogs(c *gin.Context) {
	testID := c.Param("id")
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	logs, err := s.tests.GetActionLogs(c.Request.Context(), testID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"testId": testID, "logs": logs, "count": len(logs)})
}
