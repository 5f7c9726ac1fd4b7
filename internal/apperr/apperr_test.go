package apperr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{InvalidArgument("bad"), http.StatusBadRequest},
		{Unauthenticated("no"), http.StatusUnauthorized},
		{PermissionDenied("no"), http.StatusForbidden},
		{NotFound("missing"), http.StatusNotFound},
		{Conflict("dup"), http.StatusConflict},
		{PayloadTooLarge("big"), http.StatusRequestEntityTooLarge},
		{TooManyRequests("slow down"), http.StatusTooManyRequests},
		{Internal(fmt.Errorf("boom")), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.err.HTTPStatus())
	}
}

func TestIs(t *testing.T) {
	err := NotFound("chat %s not found", "c1")
	assert.True(t, Is(err, CodeNotFound))
	assert.False(t, Is(err, CodeConflict))
	assert.False(t, Is(fmt.Errorf("plain"), CodeNotFound))
}

func TestInternalHidesCause(t *testing.T) {
	cause := fmt.Errorf("db connection refused")
	err := Internal(cause)
	assert.Equal(t, "internal error", err.Message)
	assert.ErrorIs(t, err, cause)
}
