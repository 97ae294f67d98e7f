package transport

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cc := NewConn(client)
	sc := NewConn(server)

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, cc.WriteFrame([]byte(`{"cmd":"ping"}`)))
	}()

	payload, err := sc.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, `{"cmd":"ping"}`, string(payload))
	<-done
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sc := NewConn(server)
	go func() {
		var lenBuf [4]byte
		lenBuf[0] = 0xff
		lenBuf[1] = 0xff
		lenBuf[2] = 0xff
		lenBuf[3] = 0xff
		client.Write(lenBuf[:])
	}()

	_, err := sc.ReadFrame()
	assert.Error(t, err)
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cc := NewConn(client)
	err := cc.WriteFrame(make([]byte, MaxFrameSize+1))
	assert.Error(t, err)
}
