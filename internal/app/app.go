package app

import (
	"context"
	"errors"
	"log"

	"github.com/getsentry/sentry-go"

	"github.com/huddlekit/huddle/internal/capture"
	"github.com/huddlekit/huddle/internal/media"
	"github.com/huddlekit/huddle/internal/rtc"
	"github.com/huddlekit/huddle/internal/session"
	"github.com/huddlekit/huddle/internal/signaling"
	"github.com/huddlekit/huddle/internal/transcribe"
	"github.com/huddlekit/huddle/internal/transcript"
)

// App wires one participant: relay channel, session manager, capture
// controller, transcription pipeline, transcript aggregator.
type App struct {
	cfg    Config
	logger *log.Logger

	channel     *signaling.Channel
	manager     *session.Manager
	capture     *capture.Controller
	transcripts *transcript.Aggregator
	source      media.Source
}

func New(ctx context.Context, cfg Config, logger *log.Logger) (*App, error) {
	if cfg.RelayURL == "" {
		return nil, errors.New("RELAY_URL is required")
	}

	// A missing device refuses capture and join but is not fatal to the
	// process; the participant can still receive transcripts.
	source, err := media.Acquire(media.Config{InputPath: cfg.AudioInput}, logger)
	if err != nil {
		logger.Printf("app: audio source unavailable: %v", err)
		source = nil
	}

	channel, err := signaling.Dial(ctx, signaling.Config{
		RelayURL:    cfg.RelayURL,
		DisplayName: cfg.DisplayName,
		JWTSecret:   cfg.JWTSecret,
	}, logger)
	if err != nil {
		if source != nil {
			source.Close()
		}
		return nil, err
	}

	transcripts := transcript.New(logger)
	transcripts.SetLocal(channel.LocalID(), cfg.DisplayName)

	manager := session.New(cfg.DisplayName, session.Deps{
		Channel:     channel,
		Factory:     rtc.NewPionFactory(cfg.STUNServers),
		Source:      source,
		Transcripts: transcripts,
		Surface:     &session.LogSurface{Logger: logger},
		Logger:      logger,
	})

	pipeline := transcribe.New(transcribe.Config{
		Endpoint: cfg.TranscribeURL,
		Token:    cfg.TranscribeToken,
	}, manager, logger)

	controller := capture.New(source, pipeline, cfg.ChunkInterval, cfg.DisplayName, logger)

	return &App{
		cfg:         cfg,
		logger:      logger,
		channel:     channel,
		manager:     manager,
		capture:     controller,
		transcripts: transcripts,
		source:      source,
	}, nil
}

// Run drives the session event loop until ctx is cancelled or the relay
// connection drops.
func (a *App) Run(ctx context.Context) {
	a.manager.Run(ctx)
}

func (a *App) JoinRoom(roomID string) {
	a.capture.SetRoom(roomID)
	a.manager.JoinRoom(roomID)
}

func (a *App) ToggleCapture() {
	a.capture.Toggle()
}

func (a *App) Capturing() bool {
	return a.capture.Capturing()
}

func (a *App) Transcript() string {
	return a.transcripts.Render()
}

func (a *App) Peers() []session.PeerInfo {
	return a.manager.Peers()
}

func (a *App) DisplayName() string {
	return a.cfg.DisplayName
}

func (a *App) Close() error {
	if err := a.channel.Close(); err != nil {
		a.logger.Printf("app: close channel: %v", err)
		sentry.CaptureException(err)
	}
	if a.source != nil {
		return a.source.Close()
	}
	return nil
}
