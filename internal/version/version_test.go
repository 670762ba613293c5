package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShort(t *testing.T) {
	assert.Equal(t, "1.2.0", Info{Version: "1.2.0", GitCommit: "unknown"}.Short())
	assert.Equal(t, "1.2.0-abcdef1", Info{Version: "1.2.0", GitCommit: "abcdef1234567"}.Short())
	assert.Equal(t, "1.2.0-abc", Info{Version: "1.2.0", GitCommit: "abc"}.Short())
}

func TestBanner(t *testing.T) {
	info := Info{Version: "1.0", GitCommit: "unknown", BuildDate: "2024-05-01", GoVersion: "go1.23", Platform: "linux/arm64"}
	assert.Equal(t, "csi-reader version 1.0\nBuilt: 2024-05-01\nGo: go1.23\nPlatform: linux/arm64", info.Banner("csi-reader"))

	info.BuildDate = "unknown"
	assert.NotContains(t, info.Banner("x"), "Built")
}
