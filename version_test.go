package rsp

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuildInfo(t *testing.T, v, commit, tag, treeState string) {
	t.Helper()
	originalVersion, originalGitCommit, originalGitTag, originalGitTreeState := version, gitCommit, gitTag, gitTreeState
	t.Cleanup(func() {
		version = originalVersion
		gitCommit = originalGitCommit
		gitTag = originalGitTag
		gitTreeState = originalGitTreeState
	})
	version, gitCommit, gitTag, gitTreeState = v, commit, tag, treeState
}

func TestVersionStringOutput(t *testing.T) {
	v := Version{
		Version:      "1.0.0",
		BuildDate:    "2023-05-01T12:00:00Z",
		GitCommit:    "abcdef1234567890",
		GitTag:       "v1.0.0",
		GitTreeState: "clean",
		GoVersion:    "go1.16",
		Compiler:     "gc",
		Platform:     "linux/amd64",
	}
	expected := "Version: 1.0.0, BuildDate: 2023-05-01T12:00:00Z, GitCommit: abcdef1234567890, GitTag: v1.0.0, GitTreeState: clean, GoVersion: go1.16, Compiler: gc, Platform: linux/amd64"
	assert.Equal(t, expected, v.String())
}

func TestGetVersion(t *testing.T) {
	tests := []struct {
		name      string
		commit    string
		tag       string
		treeState string
		expected  string
	}{
		{name: "clean tree and tag", commit: "1234567890abcdef", tag: "v1.2.3", treeState: "clean", expected: "v1.2.3"},
		{name: "dirty tree", commit: "1234567890abcdef", tag: "v1.2.3", treeState: "dirty", expected: "dev+1234567.dirty"},
		{name: "untagged", commit: "1234567890abcdef", treeState: "clean", expected: "dev+1234567"},
		{name: "unknown commit", treeState: "clean", expected: "dev+unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuildInfo(t, "dev", tt.commit, tt.tag, tt.treeState)
			assert.Equal(t, tt.expected, GetVersion().Version)
		})
	}
}

func TestGetVersionRuntimeInfo(t *testing.T) {
	v := GetVersion()
	assert.Equal(t, runtime.Version(), v.GoVersion)
	assert.Equal(t, runtime.Compiler, v.Compiler)
	assert.Equal(t, fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH), v.Platform)
}
