package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modeldepot/depot/pkg/depot/adapter"
	"github.com/modeldepot/depot/pkg/depot/apperrors"
)

type loadRequest struct {
	ID     string                 `json:"id" binding:"required"`
	Params map[string]interface{} `json:"params"`
}

func (s *Server) handleLoadModel(c *gin.Context) {
	var req loadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid load request", err))
		return
	}
	if _, err := s.cfg.Loader.Load(c.Request.Context(), req.ID, adapter.LoadParams(req.Params)); err != nil {
		writeError(c, err)
		return
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ModelsLoaded.Set(float64(len(s.cfg.Loader.Loaded())))
	}
	c.JSON(http.StatusOK, gin.H{"status": string(adapter.StateLoaded)})
}

type unloadRequest struct {
	ID string `json:"id" binding:"required"`
}

func (s *Server) handleUnloadModel(c *gin.Context) {
	var req unloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid unload request", err))
		return
	}
	model, err := s.cfg.Repo.Get(req.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.cfg.Loader.Unload(model.ID); err != nil {
		writeError(c, err)
		return
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ModelsLoaded.Set(float64(len(s.cfg.Loader.Loaded())))
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListLoaded(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"loaded": s.cfg.Loader.Loaded()})
}
