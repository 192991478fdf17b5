package errors

import (
	"fmt"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRexError(t *testing.T) {
	err := New(ErrCodeNoSession, "no session")
	assert.Equal(t, ErrCodeNoSession, err.Code)
	assert.Equal(t, "NO_SESSION: no session", err.Error())

	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeTransport, "exec failed")
	assert.Equal(t, cause, wrapped.Unwrap())
	assert.Contains(t, wrapped.Error(), "caused by: underlying error")

	assert.True(t, Is(wrapped, ErrCodeTransport))
	assert.False(t, Is(wrapped, ErrCodeNoSession))
	assert.False(t, Is(nil, ErrCodeTransport))

	detailed := err.WithDetail("path", "/tmp/x").WithDetail("pid", 42)
	assert.Equal(t, "/tmp/x", detailed.Details["path"])
	assert.Equal(t, 42, detailed.Details["pid"])
	assert.Contains(t, detailed.ToJSON(), `"code": "NO_SESSION"`)
}

func TestGetCodeThroughWrapping(t *testing.T) {
	inner := InvalidArgument("empty command list")
	outer := fmt.Errorf("launch: %w", inner)

	assert.Equal(t, ErrCodeInvalidArgument, GetCode(outer))
	assert.True(t, Is(outer, ErrCodeInvalidArgument))
	assert.Equal(t, ErrorCode(""), GetCode(fmt.Errorf("plain")))
	assert.Equal(t, ErrorCode(""), GetCode(nil))
}

func TestErrorConstructors(t *testing.T) {
	err := InstanceNotFound(3, 1)
	assert.Equal(t, ErrCodeInstanceNotFound, err.Code)
	assert.Equal(t, 3, err.Details["index"])

	err = ReconciliationMismatch("garbage")
	assert.Equal(t, ErrCodeReconciliationMismatch, err.Code)
	assert.Equal(t, "garbage", err.Details["line"])

	err = NoSession("/p/.rex/state.yml", nil)
	assert.Nil(t, err.Cause)
	err = NoSession("/p/.rex/state.yml", fmt.Errorf("bad yaml"))
	require.NotNil(t, err.Cause)

	err = LaunchFailed("job", fmt.Errorf("copy failed"))
	assert.Equal(t, ErrCodeLaunchFailed, err.Code)
	assert.Equal(t, "job", err.Details["name"])
}

func TestCommandFailedExitCode(t *testing.T) {
	runErr := exec.Command("sh", "-c", "exit 3").Run()
	require.Error(t, runErr)

	err := CommandFailed("exit 3", runErr)
	assert.Equal(t, ErrCodeCommandFailed, err.Code)
	assert.Equal(t, 3, err.Details["exitCode"])
}
