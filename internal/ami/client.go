package ami

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	dialTimeout = 10 * time.Second
	readTimeout = 10 * time.Second

	// bannerBufSize bounds the single read that swallows the server
	// greeting ("Asterisk Call Manager/x.y.z"). The banner is never parsed.
	bannerBufSize = 4096

	successMarker   = "Success"
	blockTerminator = "\r\n\r\n"
)

// Credentials identify one manager account on the PBX. Immutable for the
// lifetime of the process.
type Credentials struct {
	Host     string
	Port     int
	Username string
	Secret   string
}

// OriginateRequest describes the call to place.
type OriginateRequest struct {
	Channel  string
	Context  string
	Exten    string
	Priority int
	CallerID string
	Timeout  time.Duration
}

// Client is a minimal AMI client for one-shot sessions. The lifecycle is
// Connect, at most one Originate, Close; a Client is never reused across
// dispatches. Not safe for concurrent use.
type Client struct {
	creds  Credentials
	logger *zap.Logger

	conn   net.Conn
	authed bool
}

// NewClient creates a client for the given manager account. No network
// activity happens until Connect.
func NewClient(creds Credentials, logger *zap.Logger) *Client {
	return &Client{
		creds:  creds,
		logger: logger.Named("ami"),
	}
}

// Connect dials the manager, discards the greeting banner, and logs in.
// On a rejected login it returns an error wrapping ErrAuthenticationFailed;
// the caller is expected to Close the client on every exit path.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return ErrAlreadyConnected
	}

	addr := net.JoinHostPort(c.creds.Host, strconv.Itoa(c.creds.Port))
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("ami: dial %s: %w", addr, err)
	}
	c.conn = conn

	banner := make([]byte, bannerBufSize)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	if _, err := conn.Read(banner); err != nil {
		return fmt.Errorf("ami: read banner: %w", err)
	}

	login := NewAction("Login").
		Set("Username", c.creds.Username).
		Set("Secret", c.creds.Secret).
		Set("Events", "off")
	if err := c.send(login); err != nil {
		return fmt.Errorf("ami: send login: %w", err)
	}

	resp, err := c.readBlock()
	if err != nil {
		return fmt.Errorf("ami: read login response: %w", err)
	}
	if !bytes.Contains(resp, []byte(successMarker)) {
		return fmt.Errorf("%w: %q", ErrAuthenticationFailed, resp)
	}

	c.authed = true
	c.logger.Debug("logged in", zap.String("addr", addr), zap.String("username", c.creds.Username))
	return nil
}

// Originate asks the PBX to place a call. The session must be
// authenticated. The response block is read and discarded: origination is
// asynchronous on the server side, so the acknowledgement carries no
// useful outcome.
func (c *Client) Originate(ctx context.Context, req OriginateRequest) error {
	if !c.authed {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	action := NewAction("Originate").
		Set("Channel", req.Channel).
		Set("Context", req.Context).
		Set("Exten", req.Exten).
		Set("Priority", strconv.Itoa(req.Priority)).
		Set("CallerID", req.CallerID).
		Set("Timeout", strconv.FormatInt(req.Timeout.Milliseconds(), 10)).
		Set("Async", "true")
	if err := c.send(action); err != nil {
		return fmt.Errorf("ami: send originate: %w", err)
	}

	if _, err := c.readBlock(); err != nil {
		return fmt.Errorf("ami: read originate response: %w", err)
	}
	return nil
}

// Close logs off and closes the socket. Logoff failures are swallowed,
// and calling Close on an unconnected or already-closed client is a no-op.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	if c.authed {
		if err := c.send(NewAction("Logoff")); err != nil {
			c.logger.Debug("logoff failed", zap.Error(err))
		}
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Debug("socket close failed", zap.Error(err))
	}
	c.conn = nil
	c.authed = false
}

func (c *Client) send(a *Action) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	_, err := c.conn.Write(a.Bytes())
	return err
}

// readBlock accumulates bytes until the blank-line terminator shows up or
// the peer closes. Each read carries its own deadline so a stalled peer
// cannot hang the session.
func (c *Client) readBlock() ([]byte, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}

	var acc []byte
	buf := make([]byte, 4096)
	for {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, err := c.conn.Read(buf)
		if n > 0 {
			acc = append(acc, buf[:n]...)
			if bytes.Contains(acc, []byte(blockTerminator)) {
				return acc, nil
			}
		}
		if err != nil {
			if len(acc) > 0 {
				// Peer closed after sending a partial block. Hand back
				// whatever arrived and let the caller judge it.
				return acc, nil
			}
			return nil, err
		}
	}
}
