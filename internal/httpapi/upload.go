package httpapi

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/chatgw/chatgateway/internal/apperr"
)

// handleUpload godoc
// @Summary Upload a file
// @Description Re-hosts a multipart "file" field through the same uploader the WhatsApp pipeline uses for inbound media
// @Tags Upload
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File to upload"
// @Success 201 {object} ResponseData
// @Router /upload [post]
func (s *Server) handleUpload(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return writeError(s.log, c, apperr.InvalidArgument("multipart field %q is required", "file"))
	}
	if header.Size > s.maxUploadBytes {
		return writeError(s.log, c, apperr.PayloadTooLarge("upload of %q exceeds the %d byte limit", header.Filename, s.maxUploadBytes))
	}
	f, err := header.Open()
	if err != nil {
		return writeError(s.log, c, apperr.Internal(err))
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.maxUploadBytes+1))
	if err != nil {
		return writeError(s.log, c, apperr.Internal(err))
	}
	if int64(len(data)) > s.maxUploadBytes {
		return writeError(s.log, c, apperr.PayloadTooLarge("upload of %q exceeds the %d byte limit", header.Filename, s.maxUploadBytes))
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	url, err := s.uploader.Upload(c.Context(), data, mimeType, header.Filename)
	if err != nil {
		return writeError(s.log, c, err)
	}
	return writeOK(c, fiber.StatusCreated, "file uploaded", map[string]any{
		"file": map[string]any{
			"url":          url,
			"originalName": header.Filename,
			"mimeType":     mimeType,
			"size":         len(data),
			"uploadedAt":   time.Now().UTC(),
		},
	})
}
