// Package transcribe uploads captured audio to the backend transcription
// service and publishes the resulting text to the room.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
)

// ErrUploadFailed indicates the backend was unreachable or returned a
// non-2xx status. The batch is dropped; there is no retry.
var ErrUploadFailed = errors.New("transcribe: upload failed")

const defaultTimeout = 30 * time.Second

// AudioChunk is one time-sliced segment of captured audio.
type AudioChunk struct {
	Payload []byte
	Offset  time.Duration // position of the chunk within the capture run
}

// UploadBatch is the set of chunks accumulated between two flushes. It is
// consumed exactly once and never partially retried.
type UploadBatch struct {
	Chunks   []AudioChunk
	RoomID   string
	UserName string
}

// Publisher broadcasts a successful transcription to the room and records
// the local transcript event. Implemented by the session manager.
type Publisher interface {
	PublishTranscript(userName, roomID, text string)
}

// Config holds the backend endpoint parameters.
type Config struct {
	Endpoint string // transcription URL, e.g. https://host/subjects/transcribe
	Token    string // bearer token for the Authorization header
	Timeout  time.Duration
}

// Client is the transcription pipeline. Flush semantics are at-most-once:
// a failed upload is logged and its batch discarded.
type Client struct {
	cfg        Config
	publisher  Publisher
	logger     *log.Logger
	httpClient *http.Client
}

func New(cfg Config, publisher Publisher, logger *log.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		cfg:        cfg,
		publisher:  publisher,
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Flush uploads the batch in the background. It never blocks the caller;
// failures are logged and the batch is dropped.
func (c *Client) Flush(batch UploadBatch) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.httpClient.Timeout)
		defer cancel()

		if err := c.flush(ctx, batch); err != nil {
			c.logger.Printf("transcribe: %v", err)
			sentry.CaptureException(err)
		}
	}()
}

// flush concatenates the chunks, uploads them, and on success publishes
// the transcription to the room.
func (c *Client) flush(ctx context.Context, batch UploadBatch) error {
	if len(batch.Chunks) == 0 {
		return nil
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	part, err := mw.CreateFormFile("audio", fmt.Sprintf("chunk-%s.webm", uuid.NewString()))
	if err != nil {
		return fmt.Errorf("transcribe: build form: %w", err)
	}
	for _, chunk := range batch.Chunks {
		if _, err := part.Write(chunk.Payload); err != nil {
			return fmt.Errorf("transcribe: build form: %w", err)
		}
	}
	if err := mw.WriteField("userName", batch.UserName); err != nil {
		return fmt.Errorf("transcribe: build form: %w", err)
	}
	if err := mw.WriteField("roomId", batch.RoomID); err != nil {
		return fmt.Errorf("transcribe: build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("transcribe: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.Endpoint, body)
	if err != nil {
		return fmt.Errorf("transcribe: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s - %s", ErrUploadFailed, resp.Status, string(respBody))
	}

	var out struct {
		Data struct {
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUploadFailed, err)
	}

	c.publisher.PublishTranscript(batch.UserName, batch.RoomID, out.Data.Text)
	return nil
}
