// Package upload implements the pipeline.Uploader seam used to re-host
// inbound WhatsApp media (§4.5 step 2) and the /upload boundary (§6).
// Grounded on MuhamadAgungGumelar's internal/core/upload
// cloudinary_provider.go: same SDK, same folder-scoped upload call, but
// collapsed to the one shape the pipeline actually needs (bytes in, URL
// out) instead of that package's broader multipart/transform/delete API.
package upload

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/chatgw/chatgateway/internal/apperr"
)

// CloudinaryUploader uploads inbound media to a single Cloudinary folder,
// enforcing the MIME allow-list and size cap the caller configures.
type CloudinaryUploader struct {
	cld              *cloudinary.Cloudinary
	folder           string
	maxUploadBytes   int64
	allowedMimeTypes map[string]bool
}

func New(cloudName, apiKey, apiSecret, folder string, maxUploadBytes int64, allowedMimeTypes []string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("initialize cloudinary: %w", err)
	}
	allowed := make(map[string]bool, len(allowedMimeTypes))
	for _, m := range allowedMimeTypes {
		allowed[m] = true
	}
	return &CloudinaryUploader{cld: cld, folder: folder, maxUploadBytes: maxUploadBytes, allowedMimeTypes: allowed}, nil
}

// Upload implements pipeline.Uploader. It rejects disallowed MIME types
// and oversized payloads before making any network call.
func (u *CloudinaryUploader) Upload(ctx context.Context, data []byte, mimeType, filename string) (string, error) {
	if len(u.allowedMimeTypes) > 0 && !u.allowedMimeTypes[mimeType] {
		return "", apperr.InvalidArgument("mime type %q is not allowed for upload", mimeType)
	}
	if u.maxUploadBytes > 0 && int64(len(data)) > u.maxUploadBytes {
		return "", apperr.PayloadTooLarge("upload of %d bytes exceeds the %d byte limit", len(data), u.maxUploadBytes)
	}

	result, err := u.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		Folder:   u.folder,
		PublicID: filename,
	})
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("cloudinary upload: %w", err))
	}
	return result.SecureURL, nil
}
