// Package transcript merges locally produced and remotely received
// transcript events into one ordered, attributed view.
package transcript

import (
	"log"
	"strings"
	"sync"
)

// SourceKind distinguishes own transcripts from remote ones.
type SourceKind int

const (
	SourceLocal SourceKind = iota
	SourceRemote
)

// Event is one attributed transcript line. Order reflects arrival order at
// this participant, not room-wide causal order.
type Event struct {
	Source SourceKind
	Name   string
	Text   string
	Order  int
}

// Aggregator is an append-only transcript list. It never reorders past
// events.
type Aggregator struct {
	logger *log.Logger

	mu        sync.Mutex
	localID   string
	localName string
	next      int
	events    []Event

	warnedNoSender bool
}

func New(logger *log.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

// SetLocal records the relay-assigned channel id and display name used to
// filter this participant's own echoed transcripts.
func (a *Aggregator) SetLocal(channelID, displayName string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.localID = channelID
	a.localName = displayName
}

// RecordLocal appends a transcript produced by this participant's own
// pipeline. Called at flush time, before the broadcast echo returns.
func (a *Aggregator) RecordLocal(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.append(Event{Source: SourceLocal, Name: a.localName, Text: text})
}

// RecordRemote appends a transcript received over the relay, unless it is
// this participant's own echo. The relay stamps the authoritative sender
// id into from; display-name comparison is only a fallback for relays
// that do not, since names are not unique.
func (a *Aggregator) RecordRemote(from, name, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if from != "" {
		if from == a.localID {
			return
		}
	} else {
		if !a.warnedNoSender {
			a.logger.Printf("transcript: relay did not stamp sender id, falling back to display-name echo filter")
			a.warnedNoSender = true
		}
		if name == a.localName {
			return
		}
	}

	a.append(Event{Source: SourceRemote, Name: name, Text: text})
}

// Events returns a snapshot of all recorded events in arrival order.
func (a *Aggregator) Events() []Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Event, len(a.events))
	copy(out, a.events)
	return out
}

// Render formats the transcript for display, one attributed line per event.
func (a *Aggregator) Render() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var b strings.Builder
	for _, ev := range a.events {
		b.WriteString(ev.Name)
		b.WriteString(": ")
		b.WriteString(ev.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// append assigns the arrival-order counter. Callers hold the lock.
func (a *Aggregator) append(ev Event) {
	ev.Order = a.next
	a.next++
	a.events = append(a.events, ev)
}
