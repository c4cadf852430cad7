package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/shared/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AttachmentStore object storage for uploaded files
type AttachmentStore interface {
	Put(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (*storage.Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *storage.Object, error)
}

// maxUploadSize per file
const maxUploadSize = 50 << 20

// AttachmentHandler uploads change request documents and subcontractor invoices.
// The returned URLs go into attachments / subcontractor_invoice fields.
type AttachmentHandler struct {
	store  AttachmentStore
	logger *zap.Logger
}

func NewAttachmentHandler(store AttachmentStore, logger *zap.Logger) *AttachmentHandler {
	return &AttachmentHandler{store: store, logger: logger}
}

// Upload POST /attachments, multipart field "files" or "file"
func (h *AttachmentHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		BadRequest(c, "cannot parse upload: "+err.Error())
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		BadRequest(c, "no file uploaded")
		return
	}

	uploaded := make([]*storage.Object, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxUploadSize {
			BadRequest(c, fh.Filename+" exceeds "+strconv.Itoa(maxUploadSize>>20)+"MB")
			return
		}
		src, err := fh.Open()
		if err != nil {
			InternalError(c, "cannot read upload")
			return
		}
		contentType := fh.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		obj, err := h.store.Put(c.Request.Context(), fh.Filename, src, fh.Size, contentType)
		src.Close()
		if err != nil {
			h.logger.Error("Attachment upload failed", zap.String("filename", fh.Filename), zap.Error(err))
			InternalError(c, "upload failed")
			return
		}
		uploaded = append(uploaded, obj)
	}
	Created(c, uploaded)
}

// Download GET /attachments/*key
func (h *AttachmentHandler) Download(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		BadRequest(c, "key is required")
		return
	}
	body, obj, err := h.store.Get(c.Request.Context(), key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		Error(c, CodeNotFound, "attachment not found")
		return
	} else if err != nil {
		h.logger.Error("Attachment download failed", zap.String("key", key), zap.Error(err))
		InternalError(c, "download failed")
		return
	}
	defer body.Close()
	c.DataFromReader(http.StatusOK, obj.Size, obj.ContentType, body, map[string]string{
		"Content-Disposition": `attachment; filename="` + obj.Filename + `"`,
	})
}
