package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
	"github.com/modeldepot/depot/pkg/depot/identifier"
)

type startDownloadRequest struct {
	ModelID   string `json:"modelId" binding:"required"`
	RepoID    string `json:"repoId" binding:"required"`
	TargetDir string `json:"targetDir" binding:"required"`
	Type      string `json:"type" binding:"required"`
}

func parseModelType(s string) (identifier.ModelType, error) {
	switch s {
	case string(identifier.TextGeneration):
		return identifier.TextGeneration, nil
	case string(identifier.Embedding):
		return identifier.Embedding, nil
	default:
		return "", apperrors.InvalidRequestf("unknown model type %q", s)
	}
}

func (s *Server) handleStartDownload(c *gin.Context) {
	var req startDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid download request", err))
		return
	}
	modelType, err := parseModelType(req.Type)
	if err != nil {
		writeError(c, err)
		return
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.DownloadsStarted.WithLabelValues(req.Type).Inc()
	}
	info, err := s.cfg.Manager.Download(c.Request.Context(), req.ModelID, req.RepoID, req.TargetDir, modelType, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, info)
}

type modelIDRequest struct {
	ModelID string `json:"modelId" binding:"required"`
}

func (s *Server) handlePauseDownload(c *gin.Context) {
	var req modelIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid pause request", err))
		return
	}
	ok := s.cfg.Manager.Pause(req.ModelID)
	c.JSON(http.StatusOK, gin.H{"paused": ok})
}

func (s *Server) handleResumeDownload(c *gin.Context) {
	var req startDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid resume request", err))
		return
	}
	modelType, err := parseModelType(req.Type)
	if err != nil {
		writeError(c, err)
		return
	}
	info, err := s.cfg.Manager.Resume(c.Request.Context(), req.ModelID, req.RepoID, req.TargetDir, modelType, nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, info)
}

func (s *Server) handleCancelDownload(c *gin.Context) {
	var req modelIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid cancel request", err))
		return
	}
	ok := s.cfg.Manager.Cancel(req.ModelID)
	if ok && s.cfg.Metrics != nil {
		s.cfg.Metrics.DownloadsCompleted.WithLabelValues("cancelled").Inc()
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": ok})
}

func (s *Server) handleDownloadStatus(c *gin.Context) {
	modelID := c.Query("modelId")
	if modelID == "" {
		writeError(c, apperrors.InvalidRequestf("modelId query parameter is required"))
		return
	}
	status, ok := s.cfg.Manager.Status(modelID)
	if !ok {
		writeError(c, apperrors.NotFoundf("no download session for %q", modelID))
		return
	}
	progress, _ := s.cfg.Manager.Progress(modelID)
	c.JSON(http.StatusOK, gin.H{"status": status, "progress": progress})
}

func (s *Server) handleListDownloads(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"downloads": s.cfg.Manager.ListAll()})
}
