package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCode(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{nil, CodeOK},
		{fmt.Errorf("bad id: %w", ErrInvalidInput), CodeInvalidInput},
		{ErrUnknownContentType, CodeUnknownType},
		{fmt.Errorf("loading 42: %w", ErrItemNotFound), CodeItemNotFound},
		{New(ErrStorageWrite, http.StatusInternalServerError, "disk full"), CodeStorageFailure},
		{ErrTimeout, CodeTimeout},
		{errors.New("boom"), CodeInternal},
	}
	for _, tc := range cases {
		require.Equal(t, tc.code, Code(tc.err), "error %v", tc.err)
	}
}

func TestHTTPStatusCode(t *testing.T) {
	assert := require.New(t)
	assert.Equal(http.StatusTeapot, HTTPStatusCode(Newf(ErrInternal, http.StatusTeapot, "%d", 1)))
	assert.Equal(http.StatusNotFound, HTTPStatusCode(fmt.Errorf("x: %w", ErrUnknownContentType)))
	assert.Equal(http.StatusBadRequest, HTTPStatusCode(ErrInvalidInput))
	assert.Equal(http.StatusInternalServerError, HTTPStatusCode(errors.New("boom")))
}

func TestAppErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("indexing: %w", New(ErrStorageWrite, 500, "disk full"))
	require.ErrorIs(t, err, ErrStorageWrite)
	require.Equal(t, "indexing: index storage write failed: disk full", err.Error())
}
