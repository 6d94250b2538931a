package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
	"github.com/modeldepot/depot/pkg/depot/hub"
)

func (s *Server) handleDiscoverCollections(c *gin.Context) {
	filter := hub.ListFilter{Query: c.Query("query")}
	if tags := c.Query("tags"); tags != "" {
		filter.Tags = strings.Split(tags, ",")
	}
	switch c.Query("type") {
	case "textGeneration", "TextGeneration":
		filter.Type = hub.FilterTextGeneration
	case "embedding", "Embedding":
		filter.Type = hub.FilterEmbedding
	}

	opts := hub.ListOptions{Sort: c.Query("sort"), Direction: c.Query("direction")}
	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}

	collections, err := s.cfg.Catalog.Discover(c.Request.Context(), filter, opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collections": collections})
}

func (s *Server) handleCollectionInfo(c *gin.Context) {
	repoID := c.Query("repoId")
	if repoID == "" {
		writeError(c, apperrors.InvalidRequestf("repoId query parameter is required"))
		return
	}
	collection, err := s.cfg.Catalog.Info(c.Request.Context(), repoID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, collection)
}

func (s *Server) handleCollectionModels(c *gin.Context) {
	repoID := c.Query("repoId")
	if repoID == "" {
		writeError(c, apperrors.InvalidRequestf("repoId query parameter is required"))
		return
	}
	collection, err := s.cfg.Catalog.Models(c.Request.Context(), repoID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, collection)
}
