package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var errInternal = errors.New("internal error")

func (s *Server) Health(c *gin.Context) {
	available := s.Service.Embedder != nil
	if a, ok := s.Service.Embedder.(interface{ Available() bool }); ok {
		available = a.Available()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":              "healthy",
		"embedding_available": available,
	})
}

func (s *Server) Upload(c *gin.Context) {
	if s.Config.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.Config.MaxUploadBytes)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			respondError(c, http.StatusRequestEntityTooLarge, "file_too_large",
				fmt.Errorf("upload exceeds %d bytes", s.Config.MaxUploadBytes))
			return
		}
		respondError(c, http.StatusBadRequest, "invalid_request", errors.New("multipart field 'file' is required"))
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}

	info, err := s.Service.CreateSession(c.Request.Context(), fh.Filename, data)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

type AnalyzeRequest struct {
	SessionID           string   `json:"session_id" binding:"required"`
	Columns             []string `json:"columns"`
	SimilarityThreshold *float64 `json:"similarity_threshold"`
}

func (s *Server) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	threshold := s.Service.Options.DefaultThreshold
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
	}

	res, err := s.Service.Analyze(c.Request.Context(), req.SessionID, req.Columns, threshold)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type ReviewRequest struct {
	SessionID   string `json:"session_id" binding:"required"`
	DuplicateID string `json:"duplicate_id" binding:"required"`
	IsDuplicate *bool  `json:"is_duplicate" binding:"required"`
}

func (s *Server) Review(c *gin.Context) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	res, err := s.Service.Review(c.Request.Context(), req.SessionID, req.DuplicateID, *req.IsDuplicate)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) Status(c *gin.Context) {
	st, err := s.Service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) Pending(c *gin.Context) {
	id := c.Param("id")
	pending, err := s.Service.Pending(c.Request.Context(), id)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "pending_ids": pending})
}

func (s *Server) Export(c *gin.Context) {
	exp, err := s.Service.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exp.Filename))
	c.Data(http.StatusOK, exp.ContentType, exp.Data)
}

func (s *Server) Reset(c *gin.Context) {
	id := c.Param("id")
	if err := s.Service.Reset(c.Request.Context(), id); err != nil {
		s.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "status": "deleted"})
}
