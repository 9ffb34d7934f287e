package clientserver_test

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guarapi/guaradict/internal/clientserver"
	"github.com/guarapi/guaradict/internal/dictionary"
	"github.com/guarapi/guaradict/internal/synchronizer"
)

// startServer boots a Server on an ephemeral loopback port and returns
// its address along with a channel the test can drain for emitted
// mutation events.
func startServer(t *testing.T) (addr string, events chan synchronizer.Event, shutdown func()) {
	t.Helper()

	dict := dictionary.New()
	events = make(chan synchronizer.Event, 16)
	srv := clientserver.New("127.0.0.1:0", dict, events, zap.NewNop())

	a, err := srv.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx)
		close(done)
	}()

	return a.String(), events, func() {
		cancel()
		<-done
	}
}

func dialAndSend(t *testing.T, addr string, lines ...string) []string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	var responses []string
	for _, line := range lines {
		_, err := conn.Write([]byte(line + "\n"))
		require.NoError(t, err)

		if line == "QUIT" {
			continue
		}

		buf := make([]byte, 1024)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := conn.Read(buf)
		require.NoError(t, err)
		responses = append(responses, string(buf[:n]))
	}
	return responses
}

func TestAddThenGet(t *testing.T) {
	addr, events, shutdown := startServer(t)
	defer shutdown()

	responses := dialAndSend(t, addr, "ADD greeting hello world", "GET greeting")
	require.Len(t, responses, 2)
	assert.Equal(t, "Entry added successfully", responses[0])
	assert.Equal(t, "Definition: hello world", responses[1])

	ev := <-events
	assert.Equal(t, synchronizer.EventAdd, ev.Kind)
	assert.Equal(t, "greeting", ev.Key)
	assert.Equal(t, "hello world", ev.Value)

	ev = <-events
	assert.Equal(t, synchronizer.EventGet, ev.Kind)
}

func TestSetOverwritesAndReportsPriorValue(t *testing.T) {
	addr, events, shutdown := startServer(t)
	defer shutdown()

	dialAndSend(t, addr, "ADD greeting hello world")
	<-events // drain the Add event

	responses := dialAndSend(t, addr, "SET greeting hi")
	assert.Equal(t, []string{"Entry added successfully"}, responses)

	ev := <-events
	assert.Equal(t, synchronizer.EventSet, ev.Kind)
	require.NotNil(t, ev.Prev)
	assert.Equal(t, "hello world", *ev.Prev)
	assert.Equal(t, "hi", ev.Value)
}

func TestDelOnMissingKey(t *testing.T) {
	addr, events, shutdown := startServer(t)
	defer shutdown()

	responses := dialAndSend(t, addr, "DEL absent")
	assert.Equal(t, []string{"Entry removed successfully"}, responses)

	ev := <-events
	assert.Equal(t, synchronizer.EventDel, ev.Kind)
	assert.Equal(t, "absent", ev.Key)
}

func TestInvalidCommand(t *testing.T) {
	addr, _, shutdown := startServer(t)
	defer shutdown()

	responses := dialAndSend(t, addr, "FOO bar")
	assert.Equal(t, []string{"Invalid command"}, responses)
}

func TestGetMissingKey(t *testing.T) {
	addr, events, shutdown := startServer(t)
	defer shutdown()

	responses := dialAndSend(t, addr, "GET absent")
	assert.Equal(t, []string{"Key not found"}, responses)
	<-events
}

func TestBarePingRespondsWithBarePong(t *testing.T) {
	addr, _, shutdown := startServer(t)
	defer shutdown()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("PING\n"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "PONG\n", string(buf[:n]))
}

func TestQuitClosesConnection(t *testing.T) {
	addr, _, shutdown := startServer(t)
	defer shutdown()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("QUIT\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = reader.ReadByte()
	assert.Error(t, err) // connection closed by server, read should fail
}
