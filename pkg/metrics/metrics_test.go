package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBuildInfo(t *testing.T) {
	BuildInfo.WithLabelValues("rsp", "v0.1.0", "linux/amd64").Set(1)
	assert.Equal(t, float64(1), testutil.ToFloat64(BuildInfo.WithLabelValues("rsp", "v0.1.0", "linux/amd64")))
}
