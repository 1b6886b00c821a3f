// Package capture owns the on/off capture toggle and slices the local
// audio source into discrete chunks on a fixed timer.
package capture

import (
	"log"
	"sync"
	"time"

	"github.com/huddlekit/huddle/internal/media"
	"github.com/huddlekit/huddle/internal/transcribe"
)

// DefaultInterval matches the recorder timeslice of the original client.
const DefaultInterval = 3333 * time.Millisecond

// Flusher consumes one accumulated batch. It must not block; the
// transcription pipeline uploads in the background.
type Flusher interface {
	Flush(batch transcribe.UploadBatch)
}

// Controller toggles between Stopped and Capturing. While capturing, one
// AudioChunk is appended to the buffer per tick. Stopping hands the buffer
// to the flusher exactly once and clears it unconditionally.
type Controller struct {
	logger   *log.Logger
	source   media.Source
	flusher  Flusher
	interval time.Duration
	userName string

	mu        sync.Mutex
	roomID    string
	capturing bool
	stop      chan struct{}
	chunks    []transcribe.AudioChunk
	elapsed   time.Duration
}

func New(source media.Source, flusher Flusher, interval time.Duration, userName string, logger *log.Logger) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Controller{
		logger:   logger,
		source:   source,
		flusher:  flusher,
		interval: interval,
		userName: userName,
	}
}

// SetRoom records the room the next batches belong to.
func (c *Controller) SetRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
}

// Capturing reports whether the slicer is running.
func (c *Controller) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// Toggle flips between Stopped and Capturing.
func (c *Controller) Toggle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capturing {
		c.stopLocked()
	} else {
		c.startLocked()
	}
}

func (c *Controller) startLocked() {
	if c.source == nil {
		c.logger.Printf("capture: no audio track available, staying stopped")
		return
	}
	c.capturing = true
	c.stop = make(chan struct{})
	c.elapsed = 0
	go c.run(c.stop)
	c.logger.Printf("capture: started (%.3fs slices)", c.interval.Seconds())
}

func (c *Controller) stopLocked() {
	close(c.stop)
	c.stop = nil
	c.capturing = false

	// The buffer moves to the pipeline; it is cleared here whether or not
	// the upload succeeds.
	batch := transcribe.UploadBatch{
		Chunks:   c.chunks,
		RoomID:   c.roomID,
		UserName: c.userName,
	}
	c.chunks = nil

	if len(batch.Chunks) == 0 {
		c.logger.Printf("capture: stopped with no audio, skipping flush")
		return
	}
	c.logger.Printf("capture: stopped, flushing %d chunks", len(batch.Chunks))
	c.flusher.Flush(batch)
}

func (c *Controller) run(stop chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.appendChunk(stop)
		}
	}
}

func (c *Controller) appendChunk(stop chan struct{}) {
	payload, err := c.source.ReadChunk()
	if err != nil {
		c.logger.Printf("capture: read chunk: %v", err)
		return
	}
	if len(payload) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A tick can race the stop; the buffer must not grow after the flush.
	if c.stop != stop {
		return
	}
	c.elapsed += c.interval
	c.chunks = append(c.chunks, transcribe.AudioChunk{Payload: payload, Offset: c.elapsed})
}
