package transcribe

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakePublisher struct {
	mu       sync.Mutex
	userName string
	roomID   string
	text     string
	calls    int
}

func (p *fakePublisher) PublishTranscript(userName, roomID, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userName = userName
	p.roomID = roomID
	p.text = text
	p.calls++
}

func testBatch() UploadBatch {
	return UploadBatch{
		Chunks: []AudioChunk{
			{Payload: []byte("aaa"), Offset: 3333 * time.Millisecond},
			{Payload: []byte("bbb"), Offset: 6666 * time.Millisecond},
		},
		RoomID:   "R1",
		UserName: "Alice",
	}
}

func TestFlush_Success(t *testing.T) {
	publisher := &fakePublisher{}

	var gotAuth, gotUser, gotRoom string
	var gotAudio []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotUser = r.FormValue("userName")
		gotRoom = r.FormValue("roomId")
		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			gotAudio, _ = io.ReadAll(file)
			file.Close()
			if !strings.HasPrefix(header.Filename, "chunk-") || !strings.HasSuffix(header.Filename, ".webm") {
				t.Errorf("Filename = %q, want chunk-*.webm", header.Filename)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"text":"hello world"}}`))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Token: "secret-token"}, publisher, log.New(io.Discard, "", 0))

	if err := c.flush(context.Background(), testBatch()); err != nil {
		t.Fatalf("flush() = %v, want nil", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer secret-token")
	}
	if gotUser != "Alice" || gotRoom != "R1" {
		t.Errorf("metadata = (%q, %q), want (Alice, R1)", gotUser, gotRoom)
	}
	if string(gotAudio) != "aaabbb" {
		t.Errorf("audio payload = %q, want concatenated chunks %q", gotAudio, "aaabbb")
	}
	if publisher.calls != 1 {
		t.Fatalf("publish calls = %d, want 1", publisher.calls)
	}
	if publisher.text != "hello world" {
		t.Errorf("published text = %q, want %q", publisher.text, "hello world")
	}
	if publisher.userName != "Alice" || publisher.roomID != "R1" {
		t.Errorf("published attribution = (%q, %q), want (Alice, R1)", publisher.userName, publisher.roomID)
	}
}

func TestFlush_ServerErrorDiscardsBatch(t *testing.T) {
	publisher := &fakePublisher{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Token: "t"}, publisher, log.New(io.Discard, "", 0))

	err := c.flush(context.Background(), testBatch())
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("flush() = %v, want ErrUploadFailed", err)
	}
	if publisher.calls != 0 {
		t.Errorf("publish calls = %d, want 0 (failed batch must not publish)", publisher.calls)
	}
}

func TestFlush_NetworkErrorDiscardsBatch(t *testing.T) {
	publisher := &fakePublisher{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := New(Config{Endpoint: srv.URL, Token: "t"}, publisher, log.New(io.Discard, "", 0))

	err := c.flush(context.Background(), testBatch())
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("flush() = %v, want ErrUploadFailed", err)
	}
	if publisher.calls != 0 {
		t.Errorf("publish calls = %d, want 0", publisher.calls)
	}
}

func TestFlush_EmptyBatchSkipsUpload(t *testing.T) {
	publisher := &fakePublisher{}
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Token: "t"}, publisher, log.New(io.Discard, "", 0))

	if err := c.flush(context.Background(), UploadBatch{RoomID: "R1", UserName: "Alice"}); err != nil {
		t.Fatalf("flush() = %v, want nil", err)
	}
	if requests != 0 {
		t.Errorf("requests = %d, want 0 (empty batch is skipped)", requests)
	}
	if publisher.calls != 0 {
		t.Errorf("publish calls = %d, want 0", publisher.calls)
	}
}

func TestFlush_MalformedResponse(t *testing.T) {
	publisher := &fakePublisher{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Token: "t"}, publisher, log.New(io.Discard, "", 0))

	err := c.flush(context.Background(), testBatch())
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("flush() = %v, want ErrUploadFailed", err)
	}
	if publisher.calls != 0 {
		t.Errorf("publish calls = %d, want 0", publisher.calls)
	}
}
