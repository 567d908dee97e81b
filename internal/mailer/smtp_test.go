package mailer

import (
	"context"
	"net"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// silentServer accepts SMTP connections and never sends a greeting.
func silentServer(t *testing.T) (string, int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestSMTPMailerTimeoutReleasesConnections(t *testing.T) {
	host, port := silentServer(t)

	m, err := NewSMTPMailer(SMTPConfig{
		Host:    host,
		Port:    port,
		From:    "quality@example.com",
		Timeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	before := runtime.NumGoroutine()
	for i := 0; i < 5; i++ {
		start := time.Now()
		err := m.Send(context.Background(), Message{To: "alice@example.com", Subject: "s", Body: "b"})
		require.Error(t, err)
		assert.Less(t, time.Since(start), 2*time.Second)
	}

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 20*time.Millisecond, "send attempts must not outlive their timeout")
}

func TestSMTPMailerRejectsMissingRecipient(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 25, From: "quality@example.com"})
	require.NoError(t, err)

	err = m.Send(context.Background(), Message{Subject: "s", Body: "b"})
	assert.ErrorIs(t, err, ErrNoRecipient)
}
