package errcode

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMapping(t *testing.T) {
	cases := []struct {
		kind   Kind
		status int
		code   int
	}{
		{KindValidation, http.StatusBadRequest, InvalidInput},
		{KindState, http.StatusBadRequest, InvalidState},
		{KindConflict, http.StatusConflict, Duplicate},
		{KindNotFound, http.StatusNotFound, ResourceMissing},
		{KindForbidden, http.StatusForbidden, AccessDenied},
		{KindAIService, http.StatusBadGateway, UpstreamFailure},
		{KindPersistence, http.StatusInternalServerError, SystemError},
		{KindUnknown, http.StatusInternalServerError, SystemError},
	}
	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			assert.Equal(t, tc.status, StatusFor(tc.kind))
			assert.Equal(t, tc.code, CodeFor(tc.kind))
		})
	}
}

func TestWrapAndClassify(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("save: %w", Persistence("failed to save", cause))

	assert.True(t, Is(err, KindPersistence))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "save: failed to save: connection reset", err.Error())

	e, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, e.HTTPStatus())

	assert.Equal(t, KindUnknown, KindOf(cause))
	_, ok = As(cause)
	assert.False(t, ok)
}

func TestWithStatusOverridesKindStatus(t *testing.T) {
	e := Conflict("already pending").WithStatus(http.StatusBadRequest)
	assert.Equal(t, http.StatusBadRequest, e.HTTPStatus())
	assert.Equal(t, Duplicate, e.Code())
	assert.Equal(t, "already pending", e.Error())
}
