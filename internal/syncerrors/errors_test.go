package syncerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSessionExpired(t *testing.T) {
	assert.True(t, IsSessionExpired(ErrSessionExpired))
	assert.True(t, IsSessionExpired(fmt.Errorf("fetch failed: %w", ErrSessionExpired)))
	assert.True(t, IsSessionExpired(&SendError{Stage: StageNavigate, Err: ErrSessionExpired}))
	assert.False(t, IsSessionExpired(errors.New("session expired"))) // same text, different identity
	assert.False(t, IsSessionExpired(ErrTransportUnavailable))
	assert.False(t, IsSessionExpired(nil))
}

func TestFetchErrorMessage(t *testing.T) {
	withStatus := &FetchError{Transport: "pms_api", StatusCode: 503, Detail: "maintenance"}
	assert.Contains(t, withStatus.Error(), "pms_api")
	assert.Contains(t, withStatus.Error(), "503")

	withoutStatus := &FetchError{Transport: "browser_automation", Detail: "connection refused"}
	assert.Contains(t, withoutStatus.Error(), "connection refused")
	assert.NotContains(t, withoutStatus.Error(), "status")
}

func TestSendErrorDiagnostics(t *testing.T) {
	err := &SendError{
		Stage:     StageLocateInput,
		Location:  "https://platform.example/hosting/messages/42",
		PageTitle: "Messages",
		Err:       errors.New("no composer matched"),
	}

	assert.Contains(t, err.Error(), string(StageLocateInput))
	assert.Contains(t, err.Error(), "hosting/messages/42")
	assert.Contains(t, err.Error(), "no composer matched")
	assert.Equal(t, "no composer matched", errors.Unwrap(err).Error())
}
