package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mosaic/creator/cmd/mosaic/middleware"
	"github.com/mosaic/creator/cmd/mosaic/service"
	"github.com/mosaic/creator/common/logger"
	"github.com/mosaic/creator/common/objectstore"
)

// UploadAck is the fixed acknowledgment body of the upload endpoint
const UploadAck = "OK.. uploading"

// UploadHandler accepts multipart image uploads
type UploadHandler struct {
	pipeline *service.Pipeline
	policy   *service.UploadPolicy
	log      *logger.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(pipeline *service.Pipeline, policy *service.UploadPolicy, log *logger.Logger) *UploadHandler {
	return &UploadHandler{
		pipeline: pipeline,
		policy:   policy,
		log:      log,
	}
}

// Upload streams every file part into the object store and schedules its
// analysis. The reply does not depend on the outcome of any part.
// POST /upload
func (h *UploadHandler) Upload(c echo.Context) error {
	ctx := c.Request().Context()
	log := h.log.WithContext(ctx)

	reader, err := c.Request().MultipartReader()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "expected a multipart/form-data body",
		})
	}

	var userID, email string
	if sess := middleware.GetSession(c); sess != nil {
		userID, email = sess.UserID, sess.Email
	}
	accepted := 0

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
			log.Warn("upload exceeds body limit", "accepted", accepted)
			return err
		}
		if err != nil {
			log.Warn("reading multipart body failed", "accepted", accepted, "error", err)
			break
		}

		filename := part.FileName()
		if filename == "" {
			log.Debug("skipping non-file field", "field", part.FormName())
			_ = part.Close()
			continue
		}

		fp := service.FilePart{
			Filename:    filename,
			ContentType: part.Header.Get(echo.HeaderContentType),
			Length:      declaredLength(part.Header.Get(echo.HeaderContentLength)),
			Body:        part,
		}

		allowed, err := h.policy.Allow(service.UploadSubject{
			Filename:    fp.Filename,
			ContentType: fp.ContentType,
			Size:        fp.Length,
			UserID:      userID,
			UserEmail:   email,
		})
		if err != nil || !allowed {
			log.Info("upload rejected by policy", "filename", filename, "policy", h.policy.String(), "error", err)
			_ = part.Close()
			continue
		}

		// Failures are logged by the pipeline and never reach the client
		if _, err := h.pipeline.Accept(ctx, fp); err == nil {
			accepted++
		}
		_ = part.Close()
	}

	return c.String(http.StatusAccepted, UploadAck)
}

// declaredLength parses a part's Content-Length header
func declaredLength(header string) int64 {
	if header == "" {
		return objectstore.UnknownLength
	}
	n, err := strconv.ParseInt(header, 10, 64)
	if err != nil || n < 0 {
		return objectstore.UnknownLength
	}
	return n
}
