package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"image-registry/media"
	"image-registry/orm"
	"image-registry/redislock"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const maxUploadSize = 50 << 20 // 50MB

// Server adapts HTTP requests to the media service. It stays deliberately
// thin: authorization and request validation policy live upstream.
type Server struct {
	svc *media.Service
	db  *orm.DB
}

func New(svc *media.Service, db *orm.DB) *Server {
	return &Server{svc: svc, db: db}
}

// Router builds the gin engine with the image routes mounted.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/images", s.uploadImage)
	router.GET("/images/:hash", s.getImage)
	router.GET("/images/:hash/usage", s.getImageUsage)
	router.DELETE("/images/:hash", s.deleteImage)

	return router
}

func (s *Server) uploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to get file from request"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
		return
	}

	var labels []string
	if raw := c.PostForm("labels"); raw != "" {
		for _, label := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(label); trimmed != "" {
				labels = append(labels, trimmed)
			}
		}
	}

	result, err := s.svc.SaveImage(c.Request.Context(), media.SaveRequest{
		Data:             data,
		FileName:         header.Filename,
		ContentType:      header.Header.Get("Content-Type"),
		Alt:              c.PostForm("alt"),
		Description:      c.PostForm("description"),
		Labels:           labels,
		ErrorOnDuplicate: c.PostForm("errorOnDuplicate") == "true",
	})
	if err != nil {
		status := http.StatusInternalServerError

		var validationErr *media.ValidationError
		var resolveErr *media.ResolveError
		var duplicateErr *media.DuplicateError
		switch {
		case errors.As(err, &validationErr):
			status = http.StatusBadRequest
		case errors.As(err, &resolveErr):
			status = http.StatusConflict
		case errors.As(err, &duplicateErr):
			status = http.StatusConflict
		}

		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (s *Server) getImage(c *gin.Context) {
	image, err := s.db.GetImage(c.Request.Context(), c.Param("hash"))
	if err != nil {
		var notFound *orm.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
			return
		}

		log.Error().Err(err).Msg("failed to load image")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load image"})
		return
	}

	c.JSON(http.StatusOK, image)
}

func (s *Server) getImageUsage(c *gin.Context) {
	report, err := s.svc.CheckImageUsage(c.Request.Context(), c.Param("hash"))
	if err != nil {
		log.Error().Err(err).Msg("failed to check image usage")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check image usage"})
		return
	}
	if !report.Exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) deleteImage(c *gin.Context) {
	hash := c.Param("hash")
	force := c.Query("force") == "true"

	result, err := s.svc.DeleteImage(c.Request.Context(), hash, force)
	if err != nil {
		var notFound *orm.NotFoundError
		var fileErr *media.FileDeletionError
		var criticalErr *media.CriticalError

		switch {
		case errors.Is(err, redislock.ErrLockTimeout):
			c.JSON(http.StatusLocked, gin.H{
				"error": "deletion already in progress, retry later",
			})
		case errors.As(err, &notFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		case errors.As(err, &fileErr), errors.As(err, &criticalErr):
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":  err.Error(),
				"result": result,
			})
		default:
			log.Error().Err(err).Str("hash", hash).Msg("deletion failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}
