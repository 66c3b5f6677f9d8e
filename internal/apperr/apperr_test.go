package apperr

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestWriteHTTP_MapsCodesToStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err      error
		wantCode int
	}{
		{NewInvalid("bad input"), 400},
		{NewUnauthenticated("no token"), 401},
		{NewForbidden("nope"), 403},
		{NewNotFound("missing"), 404},
		{NewConflict("already done"), 409},
		{NewRateLimited("slow down", 30), 429},
		{NewUnavailable("db down", errors.New("boom")), 503},
		{NewInternal(errors.New("boom")), 500},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		WriteHTTP(c, tc.err)
		assert.Equal(t, tc.wantCode, w.Code)
	}
}

func TestAs_WrapsUnknownErrorsAsInternal(t *testing.T) {
	e := As(errors.New("plain error"))
	assert.Equal(t, Internal, e.Code)
	assert.NotEmpty(t, e.CorrelationID)
}

func TestAs_PassesThroughExistingError(t *testing.T) {
	original := NewNotFound("missing")
	e := As(original)
	assert.Same(t, original, e)
}
