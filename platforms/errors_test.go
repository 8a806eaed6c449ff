package platforms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"cms-publisher/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		auth   bool
		kind   models.ErrorKind
	}{
		{status: http.StatusUnauthorized, auth: true},
		{status: http.StatusForbidden, auth: true},
		{status: http.StatusRequestTimeout, kind: models.ErrorKindTransient},
		{status: http.StatusTooManyRequests, kind: models.ErrorKindTransient},
		{status: http.StatusBadGateway, kind: models.ErrorKindTransient},
		{status: http.StatusServiceUnavailable, kind: models.ErrorKindTransient},
		{status: http.StatusUnprocessableEntity, kind: models.ErrorKindPermanent},
		{status: http.StatusNotFound, kind: models.ErrorKindPermanent},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			t.Parallel()
			err := classifyStatus(models.PlatformDevTo, tc.status, "boom")

			var authErr *AuthError
			if tc.auth {
				require.ErrorAs(t, err, &authErr)
				assert.Equal(t, tc.status, authErr.StatusCode)
				return
			}
			assert.False(t, errors.As(err, &authErr))
			assert.Equal(t, tc.kind, KindOf(err))
			assert.Equal(t, "boom", Message(err))
		})
	}
}

func TestClassifyTransportIsTransient(t *testing.T) {
	t.Parallel()

	err := classifyTransport(models.PlatformGhost, fmt.Errorf("dial: %w", context.DeadlineExceeded))
	assert.Equal(t, models.ErrorKindTransient, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExtractMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Title can't be blank", extractMessage([]byte(`{"error":"Title can't be blank","status":422}`)))
	assert.Equal(t, "Validation error", extractMessage([]byte(`{"errors":[{"message":"Validation error","type":"ValidationError"}]}`)))
	assert.Equal(t, "bad token", extractMessage([]byte(`{"error":"invalid_grant","error_description":"bad token"}`)))
	assert.Equal(t, "nested", extractMessage([]byte(`{"error":{"message":"nested"}}`)))
	assert.Equal(t, "upstream down", extractMessage([]byte("upstream down")))
	assert.Equal(t, "", extractMessage(nil))
}

func TestMessageIsBounded(t *testing.T) {
	t.Parallel()

	err := classifyStatus(models.PlatformWix, http.StatusBadRequest, strings.Repeat("é", 600))
	msg := Message(err)
	assert.LessOrEqual(t, len(msg), maxMessageBytes)
	assert.True(t, utf8.ValidString(msg))
}

func TestKindOfUnknownErrorIsPermanent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, models.ErrorKindPermanent, KindOf(errors.New("weird")))
	assert.Equal(t, models.ErrorKindPermanent, KindOf(&AuthError{Platform: models.PlatformDevTo}))
	assert.Equal(t, models.ErrorKindNone, KindOf(nil))
}
