package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.NotEmpty(t, info.Commit)
}

func TestInfoString(t *testing.T) {
	s := Info{Version: "v1.0.0", Commit: "abc123", Platform: "linux/amd64"}.String()
	assert.True(t, strings.HasPrefix(s, "Version:\tv1.0.0\n"))
	assert.Contains(t, s, "Commit:\t\tabc123")
	assert.Contains(t, s, "Platform:\tlinux/amd64")
}
