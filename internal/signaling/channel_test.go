package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newTestRelay runs a minimal relay: it assigns a channel id on connect
// and hands the raw connection to fn.
func newTestRelay(t *testing.T, fn func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		hello, _ := json.Marshal(Connected{SocketID: "chan-42"})
		if err := conn.WriteJSON(Envelope{Event: EventConnected, Data: hello}); err != nil {
			t.Errorf("write handshake: %v", err)
			return
		}
		fn(conn, r)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testConfig(srv *httptest.Server) Config {
	return Config{
		RelayURL:    wsURL(srv),
		DisplayName: "Alice",
		JWTSecret:   "test-secret",
	}
}

func TestDial_HandshakeAssignsLocalID(t *testing.T) {
	srv := newTestRelay(t, func(conn *websocket.Conn, r *http.Request) {
		conn.ReadMessage() // hold the connection open until close
	})
	defer srv.Close()

	c, err := Dial(context.Background(), testConfig(srv), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Dial() = %v, want nil", err)
	}
	defer c.Close()

	if got := c.LocalID(); got != "chan-42" {
		t.Errorf("LocalID() = %q, want %q", got, "chan-42")
	}
}

func TestDial_SendsSignedAuthToken(t *testing.T) {
	var gotAuth string
	srv := newTestRelay(t, func(conn *websocket.Conn, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		conn.ReadMessage()
	})
	defer srv.Close()

	c, err := Dial(context.Background(), testConfig(srv), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Dial() = %v", err)
	}
	defer c.Close()

	if !strings.HasPrefix(gotAuth, "Bearer ") {
		t.Fatalf("Authorization = %q, want a bearer token", gotAuth)
	}
	tokenString := strings.TrimPrefix(gotAuth, "Bearer ")
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			t.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte("test-secret"), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("token did not verify: %v", err)
	}
	if claims["userName"] != "Alice" {
		t.Errorf("userName claim = %v, want Alice", claims["userName"])
	}
}

func TestDial_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	cfg := Config{RelayURL: wsURL(srv), DisplayName: "Alice", JWTSecret: "s", DialTimeout: time.Second}
	_, err := Dial(context.Background(), cfg, log.New(io.Discard, "", 0))
	if err == nil {
		t.Fatal("Dial() should fail against a closed relay")
	}
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("err = %v, want wrapped ErrUnreachable", err)
	}
}

func TestDial_RejectsBadHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(Envelope{Event: "banner", Data: json.RawMessage(`"hi"`)})
		conn.ReadMessage()
	}))
	defer srv.Close()

	cfg := Config{RelayURL: wsURL(srv), DisplayName: "Alice", JWTSecret: "s", DialTimeout: time.Second}
	_, err := Dial(context.Background(), cfg, log.New(io.Discard, "", 0))
	if err == nil {
		t.Fatal("Dial() should reject a relay that never assigns an id")
	}
}

func TestEmitAndReceive(t *testing.T) {
	received := make(chan Envelope, 1)
	srv := newTestRelay(t, func(conn *websocket.Conn, r *http.Request) {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		received <- env

		data, _ := json.Marshal(UserJoined{UserName: "Bob", SocketID: "chan-7", RoomID: "R1"})
		conn.WriteJSON(Envelope{Event: EventUserJoined, Data: data})
		conn.ReadMessage()
	})
	defer srv.Close()

	c, err := Dial(context.Background(), testConfig(srv), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Dial() = %v", err)
	}
	defer c.Close()

	if err := c.Emit(EventJoinRoom, "R1"); err != nil {
		t.Fatalf("Emit() = %v", err)
	}

	select {
	case env := <-received:
		if env.Event != EventJoinRoom {
			t.Errorf("relay saw event %q, want joinRoom", env.Event)
		}
		var roomID string
		if err := json.Unmarshal(env.Data, &roomID); err != nil || roomID != "R1" {
			t.Errorf("relay saw data %s, want \"R1\"", env.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay never received the join")
	}

	select {
	case env := <-c.Events():
		if env.Event != EventUserJoined {
			t.Fatalf("received event %q, want userJoined", env.Event)
		}
		var p UserJoined
		if err := json.Unmarshal(env.Data, &p); err != nil {
			t.Fatalf("unmarshal userJoined: %v", err)
		}
		if p.SocketID != "chan-7" || p.UserName != "Bob" {
			t.Errorf("userJoined = %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client never received userJoined")
	}
}

func TestClose_EndsEventStream(t *testing.T) {
	srv := newTestRelay(t, func(conn *websocket.Conn, r *http.Request) {
		conn.ReadMessage()
	})
	defer srv.Close()

	c, err := Dial(context.Background(), testConfig(srv), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("Dial() = %v", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}

	select {
	case _, ok := <-c.Events():
		if ok {
			t.Error("Events() should be closed, got an envelope")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Events() never closed")
	}
}
