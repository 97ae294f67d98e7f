package client_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
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

// startTestServer brings up a ParallelServer backed by a fresh
// dispatcher and returns its address, pre-seeded with one admin user.
// Each connection gets its own dispatcher.Session, since serveLoop calls
// the handler repeatedly for the same *transport.Conn.
func startTestServer(t *testing.T) string {
	t.Helper()
	manager := collection.NewManager(t.TempDir())
	blobs := blob.NewStore(t.TempDir())
	users, err := auth.OpenStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, users.CreateUser("ada", "hunter2", auth.RoleAdmin))

	d := dispatcher.New(manager, blobs, users, nil)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	lis.Close()

	var mu sync.Mutex
	sessions := map[*transport.Conn]*dispatcher.Session{}
	handle := func(ctx context.Context, conn *transport.Conn) error {
		mu.Lock()
		sess, ok := sessions[conn]
		if !ok {
			sess = d.NewSession()
			sessions[conn] = sess
		}
		mu.Unlock()

		raw, err := conn.ReadFrame()
		if err != nil {
			mu.Lock()
			delete(sessions, conn)
			mu.Unlock()
			d.Disconnect(sess)
			return err
		}
		var req dispatcher.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			return err
		}
		reply := d.Dispatch(ctx, sess, req)
		payload, err := json.Marshal(reply)
		if err != nil {
			return err
		}
		return conn.WriteFrame(payload)
	}

	srv := transport.NewParallelServer(transport.ServerConfig{Addr: addr}, handle)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx)
	time.Sleep(50 * time.Millisecond)
	return addr
}

func TestClientPingAndAuthenticate(t *testing.T) {
	addr := startTestServer(t)
	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Ping())
	require.NoError(t, c.Authenticate("ada", "hunter2"))
}

func TestClientInsertFindUpdateDelete(t *testing.T) {
	addr := startTestServer(t)
	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Authenticate("ada", "hunter2"))

	doc := document.ObjectValue(func() *document.Object {
		o := document.NewObject()
		o.Set("name", document.String("ada"))
		o.Set("age", document.Number(30))
		return o
	}())
	id, err := c.Insert("users", doc)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	filter := document.ObjectValue(func() *document.Object {
		o := document.NewObject()
		o.Set("name", document.String("ada"))
		return o
	}())
	rows, err := c.Find("users", filter)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	count, err := c.Count("users", filter)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	update := document.ObjectValue(func() *document.Object {
		set := document.NewObject()
		set.Set("age", document.Number(31))
		o := document.NewObject()
		o.Set("$set", document.ObjectValue(set))
		return o
	}())
	modified, err := c.Update("users", filter, update)
	require.NoError(t, err)
	assert.Equal(t, 1, modified)

	removed, err := c.Delete("users", filter)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestClientTransactionCommit(t *testing.T) {
	addr := startTestServer(t)
	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Authenticate("ada", "hunter2"))

	require.NoError(t, c.BeginTx())
	doc := document.ObjectValue(func() *document.Object {
		o := document.NewObject()
		o.Set("sku", document.String("widget"))
		return o
	}())
	_, err = c.Insert("products", doc)
	require.NoError(t, err)

	ids, err := c.CommitTx()
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	rows, err := c.Find("products", document.ObjectValue(document.NewObject()))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestClientBlobRoundTrip(t *testing.T) {
	addr := startTestServer(t)
	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Authenticate("ada", "hunter2"))

	require.NoError(t, c.CreateBucket("photos"))
	require.NoError(t, c.PutObject("photos", "cat.png", "image/png", []byte("meow"), nil))

	data, found, err := c.GetObject("photos", "cat.png")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "meow", string(data))

	require.NoError(t, c.DeleteObject("photos", "cat.png"))
	_, found, err = c.GetObject("photos", "cat.png")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClientSQL(t *testing.T) {
	addr := startTestServer(t)
	c, err := client.Dial(addr)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Authenticate("ada", "hunter2"))

	doc := document.ObjectValue(func() *document.Object {
		o := document.NewObject()
		o.Set("name", document.String("ada"))
		o.Set("age", document.Number(30))
		return o
	}())
	_, err = c.Insert("users", doc)
	require.NoError(t, err)

	rows, err := c.SQL("SELECT name FROM users WHERE age >= 18")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
