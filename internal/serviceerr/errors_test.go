package serviceerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openkcm/session-client/internal/serviceerr"
)

func TestErrSessionExpired(t *testing.T) {
	wrapped := fmt.Errorf("%w: %w", serviceerr.ErrSessionExpired, errors.New("refresh endpoint returned 500"))

	assert.ErrorIs(t, wrapped, serviceerr.ErrSessionExpired)
	assert.Equal(t, "session expired, please log in again: refresh endpoint returned 500", wrapped.Error())
}
