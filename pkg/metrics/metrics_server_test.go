/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numaflow-rsp/pkg/shared/logging"
)

type mockPendingReader struct {
	name string
}

func (m *mockPendingReader) GetName() string {
	return m.name
}

func (m *mockPendingReader) Pending(ctx context.Context) (int64, error) {
	return 200, nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) IsHealthy(ctx context.Context) error {
	return m.err
}

func startServer(t *testing.T, opts ...Option) *httpexpect.Expect {
	t.Helper()
	ctx := logging.WithLogger(context.Background(), logging.NewNopLogger())
	ms := NewMetricsServer(append([]Option{WithAddr("127.0.0.1:0")}, opts...)...)
	shutdown, err := ms.Start(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, ms.Addr())
	t.Cleanup(func() {
		assert.NoError(t, shutdown(context.Background()))
	})
	return httpexpect.Default(t, "http://"+ms.Addr())
}

func Test_StartMetricsServer(t *testing.T) {
	e := startServer(t,
		WithHealthChecker(&mockHealthChecker{}),
		WithPendingReader(&mockPendingReader{name: "test-reader"}),
		WithRefreshInterval(10*time.Millisecond))

	e.GET("/livez").Expect().Status(http.StatusNoContent)
	e.GET("/readyz").Expect().Status(http.StatusNoContent)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(pending.WithLabelValues("test-reader")) == 200
	}, time.Second, 10*time.Millisecond)
	e.GET("/metrics").Expect().Status(http.StatusOK).Body().Contains(`pending{engine="test-reader"} 200`)
}

func Test_MetricsServer_Unhealthy(t *testing.T) {
	e := startServer(t, WithHealthChecker(&mockHealthChecker{err: errors.New("engine is closed")}))
	e.GET("/readyz").Expect().Status(http.StatusInternalServerError).Body().IsEqual("engine is closed")
}

func Test_MetricsServer_Options(t *testing.T) {
	ms := NewMetricsServer(WithRefreshInterval(10*time.Second), WithHealthChecker(&mockHealthChecker{}), nil)
	assert.Equal(t, DefaultAddr, ms.addr)
	assert.Equal(t, 10*time.Second, ms.refreshInterval)
	assert.Len(t, ms.healthCheckers, 1)
	assert.Empty(t, ms.pendingReaders)
	assert.Empty(t, ms.Addr())
}

func Test_MetricsServer_InvalidAddr(t *testing.T) {
	ms := NewMetricsServer(WithAddr("127.0.0.1:-1"))
	_, err := ms.Start(logging.WithLogger(context.Background(), logging.NewNopLogger()))
	assert.Error(t, err)
}
