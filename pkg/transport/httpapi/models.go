package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
)

func (s *Server) handleListModels(c *gin.Context) {
	models, err := s.cfg.Repo.List()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

func (s *Server) handleShowModel(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		writeError(c, apperrors.InvalidRequestf("id query parameter is required"))
		return
	}
	model, err := s.cfg.Repo.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model)
}

type setAliasRequest struct {
	ID    string `json:"id" binding:"required"`
	Alias string `json:"alias" binding:"required"`
}

func (s *Server) handleSetAlias(c *gin.Context) {
	var req setAliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid alias request", err))
		return
	}
	if err := s.cfg.Repo.SetAlias(req.ID, req.Alias); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCheckDownloaded(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		writeError(c, apperrors.InvalidRequestf("id query parameter is required"))
		return
	}
	model, err := s.cfg.Repo.Get(id)
	if err != nil {
		if kind, ok := apperrors.ErrorKind(err); ok && kind == apperrors.KindNotFound {
			c.JSON(http.StatusOK, gin.H{"downloaded": false})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"downloaded": true, "model": model})
}

func (s *Server) handleDeleteModel(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		writeError(c, apperrors.InvalidRequestf("id query parameter is required"))
		return
	}
	if err := s.cfg.Repo.Delete(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
