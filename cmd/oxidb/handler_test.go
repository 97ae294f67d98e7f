package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxidb/oxidb/pkg/auth"
	"github.com/oxidb/oxidb/pkg/blob"
	"github.com/oxidb/oxidb/pkg/client"
	"github.com/oxidb/oxidb/pkg/collection"
	"github.com/oxidb/oxidb/pkg/dispatcher"
	"github.com/oxidb/oxidb/pkg/document"
	"github.com/oxidb/oxidb/pkg/transport"
)

// startHandlerServer brings up a ParallelServer driven by newConnHandler,
// the same handler cmd/oxidb's serve command installs, so a client
// dialing it exercises the real dispatch/metrics/logging path.
func startHandlerServer(t *testing.T) string {
	t.Helper()
	manager := collection.NewManager(t.TempDir())
	t.Cleanup(func() { _ = manager.CloseAll() })
	blobs := blob.NewStore(t.TempDir())
	users, err := auth.OpenStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, users.CreateUser("ada", "hunter2", auth.RoleAdmin))

	d := dispatcher.New(manager, blobs, users, nil)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	lis.Close()

	srv := transport.NewParallelServer(transport.ServerConfig{Addr: addr}, newConnHandler(d))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx)
	time.Sleep(50 * time.Millisecond)
	return addr
}

func TestConnHandlerPingAndAuthenticate(t *testing.T) {
	addr := startHandlerServer(t)

	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	assert.NoError(t, c.Ping())
	assert.NoError(t, c.Authenticate("ada", "hunter2"))
}

func TestConnHandlerInsertAndFind(t *testing.T) {
	addr := startHandlerServer(t)

	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Authenticate("ada", "hunter2"))

	widget := document.NewObject()
	widget.Set("name", document.String("left-handed smoke shifter"))
	id, err := c.Insert("widgets", document.ObjectValue(widget))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	docs, err := c.Find("widgets", document.ObjectValue(document.NewObject()))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestConnHandlerRejectsCommandBeforeAuth(t *testing.T) {
	addr := startHandlerServer(t)

	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	doc := document.NewObject()
	doc.Set("name", document.String("no auth yet"))
	_, err = c.Insert("widgets", document.ObjectValue(doc))
	assert.Error(t, err)
}
