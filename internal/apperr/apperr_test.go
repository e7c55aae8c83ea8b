package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWalksChain(t *testing.T) {
	base := Conflict("product %q already exists", "Bread")
	wrapped := fmt.Errorf("create product: %w", base)

	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, `product "Bread" already exists`, PublicMessage(wrapped))
	assert.True(t, Is(wrapped, KindConflict))
}

func TestPlainErrorsAreInternal(t *testing.T) {
	err := errors.New("pq: relation does not exist")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal server error", PublicMessage(err))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindBadRequest:   http.StatusBadRequest,
		KindUnauthorized: http.StatusUnauthorized,
		KindForbidden:    http.StatusForbidden,
		KindNotFound:     http.StatusNotFound,
		KindConflict:     http.StatusConflict,
		KindUnavailable:  http.StatusInternalServerError,
		KindInternal:     http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.HTTPStatus(), kind.String())
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Unavailable("tenant namespace unavailable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, "tenant namespace unavailable", PublicMessage(err))
}
