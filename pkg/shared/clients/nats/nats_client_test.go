package nats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	natstest "github.com/numaproj/numaflow-rsp/pkg/shared/clients/nats/test"
	"github.com/numaproj/numaflow-rsp/pkg/shared/logging"
)

func TestConnect(t *testing.T) {
	s := natstest.RunNatsServer(t)
	defer natstest.ShutdownNatsServer(t, s)

	ctx := logging.WithLogger(context.Background(), logging.NewNopLogger())
	nc, err := Connect(ctx, s.ClientURL(), Options{Name: "rsp-test"})
	require.NoError(t, err)
	defer nc.Close()
	assert.True(t, nc.IsConnected())
}

func TestConnect_Token(t *testing.T) {
	s := natstest.RunNatsServerWithToken(t, "secret")
	defer natstest.ShutdownNatsServer(t, s)

	ctx := logging.WithLogger(context.Background(), logging.NewNopLogger())
	_, err := Connect(ctx, s.ClientURL(), Options{Auth: Auth{Token: "wrong"}})
	assert.Error(t, err)

	nc, err := Connect(ctx, s.ClientURL(), Options{Auth: Auth{Token: "secret"}})
	require.NoError(t, err)
	defer nc.Close()
	assert.True(t, nc.IsConnected())
}
