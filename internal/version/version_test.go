package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name    string
		version string
		vcs     VCSInfo
		want    string
	}{
		{"no vcs", "0.1.0", VCSInfo{}, "0.1.0-amd64-linux"},
		{"short commit", "v0.1.0", VCSInfo{Commit: "0123456789abcdef"}, "0.1.0-0123456-amd64-linux"},
		{"dirty", "0.2.0", VCSInfo{Commit: "abc", Dirty: true}, "0.2.0-abc+dirty-amd64-linux"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, format(tt.version, tt.vcs, "amd64", "linux"))
		})
	}
}

func TestBuildInfoVCS(t *testing.T) {
	info := &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs", Value: "git"},
		{Key: "vcs.revision", Value: "deadbeefcafe"},
		{Key: "vcs.modified", Value: "true"},
	}}
	got, ok := buildInfoVCS(info)
	assert.True(t, ok)
	assert.Equal(t, VCSInfo{Commit: "deadbeefcafe", Dirty: true}, got)

	_, ok = buildInfoVCS(&debug.BuildInfo{})
	assert.False(t, ok)
}

func TestString(t *testing.T) {
	s := String()
	assert.True(t, strings.HasPrefix(s, Version), s)
	assert.True(t, strings.HasSuffix(s, "-"+runtime.GOARCH+"-"+runtime.GOOS), s)
}
