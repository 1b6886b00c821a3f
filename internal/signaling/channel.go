package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

// ErrUnreachable indicates the relay could not be reached or refused the
// connection. There is no automatic reconnect.
var ErrUnreachable = errors.New("signaling: relay unreachable")

const (
	defaultDialTimeout = 10 * time.Second
	writeTimeout       = 10 * time.Second
	eventBuffer        = 64
)

// Config holds the parameters for one relay connection.
type Config struct {
	RelayURL    string
	DisplayName string
	JWTSecret   string // shared placeholder credential used to mint the auth token
	DialTimeout time.Duration
}

// Channel is a persistent, authenticated, room-scoped pub/sub connection
// to the relay. Events() has a single reader; Emit may be called from any
// goroutine.
type Channel struct {
	conn    *websocket.Conn
	logger  *log.Logger
	localID string

	writeMu   sync.Mutex
	events    chan Envelope
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the relay, authenticates with the display name and the
// placeholder credential, and waits for the relay to assign a channel id.
func Dial(ctx context.Context, cfg Config, logger *log.Logger) (*Channel, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	token, err := authToken(cfg.DisplayName, cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("signaling: mint auth token: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.DialContext(ctx, cfg.RelayURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, resp.Status, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	// The relay speaks first: it assigns our channel id.
	conn.SetReadDeadline(time.Now().Add(timeout))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: reading handshake: %v", ErrUnreachable, err)
	}
	if env.Event != EventConnected {
		conn.Close()
		return nil, fmt.Errorf("%w: unexpected handshake event %q", ErrUnreachable, env.Event)
	}
	var hello Connected
	if err := json.Unmarshal(env.Data, &hello); err != nil || hello.SocketID == "" {
		conn.Close()
		return nil, fmt.Errorf("%w: malformed handshake", ErrUnreachable)
	}
	conn.SetReadDeadline(time.Time{})

	c := &Channel{
		conn:    conn,
		logger:  logger,
		localID: hello.SocketID,
		events:  make(chan Envelope, eventBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	logger.Printf("signaling: connected as %s (%s)", cfg.DisplayName, c.localID)
	return c, nil
}

// authToken mints the short-lived HS256 token presented on dial. The relay
// only checks the signature; the credential itself is a fixed placeholder.
func authToken(displayName, secret string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"userName": displayName,
		"iat":      jwt.NewNumericDate(now),
		"exp":      jwt.NewNumericDate(now.Add(24 * time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// LocalID returns the channel id the relay assigned on connect.
func (c *Channel) LocalID() string {
	return c.localID
}

// Emit sends one envelope to the relay.
func (c *Channel) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("signaling: marshal %s payload: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(Envelope{Event: event, Data: data}); err != nil {
		return fmt.Errorf("signaling: emit %s: %w", event, err)
	}
	return nil
}

// Events returns the inbound envelope stream. The channel is closed when
// the connection drops or Close is called.
func (c *Channel) Events() <-chan Envelope {
	return c.events
}

// Close tears down the connection.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

func (c *Channel) readLoop() {
	defer close(c.events)

	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.logger.Printf("signaling: read error: %v", err)
				}
			}
			return
		}

		select {
		case c.events <- env:
		default:
			// A stalled consumer must not wedge the read loop.
			c.logger.Printf("signaling: event buffer full, dropping %s", env.Event)
		}
	}
}
