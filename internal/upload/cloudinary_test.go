package upload

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatgw/chatgateway/internal/apperr"
)

func TestUpload_RejectsDisallowedMimeTypeBeforeNetworkCall(t *testing.T) {
	u := &CloudinaryUploader{allowedMimeTypes: map[string]bool{"image/png": true}}
	_, err := u.Upload(context.Background(), []byte("data"), "application/pdf", "f.pdf")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
}

func TestUpload_RejectsOversizedPayloadBeforeNetworkCall(t *testing.T) {
	u := &CloudinaryUploader{maxUploadBytes: 4}
	_, err := u.Upload(context.Background(), []byte("too big"), "image/png", "f.png")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodePayloadTooLarge))
}
