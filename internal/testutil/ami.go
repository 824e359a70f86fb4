package testutil

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// AMIServer is an in-process fake Asterisk Manager Interface. It speaks
// just enough of the protocol for the bridge: greeting banner, Login,
// Originate, Logoff. Every accepted connection counts as one session and
// every received command block is recorded for assertions.
type AMIServer struct {
	listener net.Listener

	// RejectLogin makes the server answer Login with an error block.
	RejectLogin bool

	mu       sync.Mutex
	sessions int
	blocks   [][]byte
}

// StartAMIServer starts a fake AMI server on a random localhost port.
func StartAMIServer(t *testing.T) (*AMIServer, func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &AMIServer{listener: ln}
	go s.acceptLoop()

	return s, func() { ln.Close() }
}

// Addr returns the host and port the server listens on.
func (s *AMIServer) Addr() (string, int) {
	addr := s.listener.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

// Sessions returns the number of connections accepted so far.
func (s *AMIServer) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

// Blocks returns copies of all command blocks received across sessions.
func (s *AMIServer) Blocks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.blocks))
	for i, b := range s.blocks {
		out[i] = append([]byte(nil), b...)
	}
	return out
}

// ReceivedAction reports whether any recorded block carries the given
// Action value.
func (s *AMIServer) ReceivedAction(name string) bool {
	needle := []byte("Action: " + name + "\r\n")
	for _, b := range s.Blocks() {
		if bytes.Contains(b, needle) {
			return true
		}
	}
	return false
}

// WaitForAction waits until a block with the given Action value arrives.
func (s *AMIServer) WaitForAction(t *testing.T, name string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.ReceivedAction(name) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for AMI action %q", name)
}

// WaitForSessions waits until at least n sessions have been accepted.
func (s *AMIServer) WaitForSessions(t *testing.T, n int, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Sessions() >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d AMI sessions, got %d", n, s.Sessions())
}

func (s *AMIServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.sessions++
		s.mu.Unlock()
		go s.serve(conn)
	}
}

func (s *AMIServer) serve(conn net.Conn) {
	defer conn.Close()

	conn.Write([]byte("Asterisk Call Manager/5.0.4\r\n"))

	var acc []byte
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			acc = append(acc, buf[:n]...)
			for {
				idx := bytes.Index(acc, []byte("\r\n\r\n"))
				if idx < 0 {
					break
				}
				block := append([]byte(nil), acc[:idx+4]...)
				acc = acc[idx+4:]
				s.handleBlock(conn, block)
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *AMIServer) handleBlock(conn net.Conn, block []byte) {
	s.mu.Lock()
	s.blocks = append(s.blocks, block)
	s.mu.Unlock()

	switch {
	case bytes.Contains(block, []byte("Action: Login\r\n")):
		if s.RejectLogin {
			conn.Write([]byte("Response: Error\r\nMessage: Authentication failed\r\n\r\n"))
			return
		}
		conn.Write([]byte("Response: Success\r\nMessage: Authentication accepted\r\n\r\n"))
	case bytes.Contains(block, []byte("Action: Originate\r\n")):
		conn.Write([]byte("Response: Success\r\nMessage: Originate successfully queued\r\n\r\n"))
	case bytes.Contains(block, []byte("Action: Logoff\r\n")):
		conn.Write([]byte("Response: Goodbye\r\nMessage: Thanks for all the fish.\r\n\r\n"))
	}
}
