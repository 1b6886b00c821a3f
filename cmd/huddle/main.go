package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/huddlekit/huddle/internal/app"
)

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()
	cfg := app.LoadConfigFromEnv()

	flag.StringVar(&cfg.RelayURL, "relay", cfg.RelayURL, "Relay websocket URL")
	flag.StringVar(&cfg.DisplayName, "name", cfg.DisplayName, "Display name")
	flag.StringVar(&cfg.AudioInput, "audio", cfg.AudioInput, "Audio input path")
	flag.StringVar(&cfg.TranscribeURL, "transcribe", cfg.TranscribeURL, "Transcription backend URL")
	room := flag.String("room", "", "Room to join on startup")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	// Initialize Sentry for error monitoring
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: getEnvironment(),
		})
		if err != nil {
			logger.Printf("sentry init failed: %v", err)
		} else {
			logger.Printf("sentry initialized")
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		if cfg.SentryDSN != "" {
			sentry.CaptureException(err)
			sentry.Flush(2 * time.Second)
		}
		logger.Fatalf("init app: %v", err)
	}
	defer a.Close()

	go func() {
		a.Run(ctx)
		cancel()
	}()

	if *room != "" {
		a.JoinRoom(*room)
	}

	fmt.Printf("%s ready. Commands: join <room>, capture, transcript, peers, quit\n", a.DisplayName())
	repl(ctx, cancel, a)
}

// repl reads commands from stdin until quit or shutdown.
func repl(ctx context.Context, cancel context.CancelFunc, a *app.App) {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				cancel()
				return
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			switch fields[0] {
			case "join":
				if len(fields) < 2 {
					fmt.Println("usage: join <room>")
					continue
				}
				a.JoinRoom(fields[1])
			case "capture":
				a.ToggleCapture()
				if a.Capturing() {
					fmt.Println("capturing")
				} else {
					fmt.Println("stopped")
				}
			case "transcript":
				fmt.Print(a.Transcript())
			case "peers":
				for _, p := range a.Peers() {
					fmt.Printf("%s\t%s\t%s\n", p.ChannelID, p.DisplayName, p.State)
				}
			case "quit":
				cancel()
				return
			default:
				fmt.Printf("unknown command %q\n", fields[0])
			}
		}
	}
}

func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
