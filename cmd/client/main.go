package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/Televisit/internal/app/negotiator"
	"github.com/dkeye/Televisit/internal/app/session"
	"github.com/dkeye/Televisit/internal/config"
	"github.com/dkeye/Televisit/internal/core"
	"github.com/dkeye/Televisit/internal/domain"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	fs := pflag.NewFlagSet("televisit-client", pflag.ExitOnError)
	config.ClientFlags(fs)
	verbose := fs.BoolP("verbose", "v", false, "debug logging")
	_ = fs.Parse(os.Args[1:])
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.LoadSession(fs)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid session config")
	}
	deps, err := session.DefaultDeps(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build session")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, session.New(cfg, deps))
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, s *session.Session) int {
	logger := log.With().Str("module", "client").Str("session", s.Key().String()).Logger()

	s.OnNegotiation(func(t negotiator.Transition) {
		if t.To == negotiator.Connected {
			fmt.Println("* connected")
		}
	})

	if err := s.Start(ctx); err != nil {
		if errors.Is(err, domain.ErrSessionEnded) {
			fmt.Println("* this appointment is already completed, the session is closed")
			return 0
		}
		logger.Error().Err(err).Msg("session start failed")
		return 1
	}

	s.Chat().Subscribe(printChat)

	go readCommands(ctx, s)

	select {
	case <-ctx.Done():
		s.End(context.Background(), session.ReasonLocal)
	case <-s.Done():
	}

	res := s.Result()
	if res.Err != nil {
		fmt.Printf("* call ended (%s): %v\n", res.Reason, res.Err)
	} else {
		fmt.Printf("* call ended (%s)\n", res.Reason)
	}
	if res.Notified {
		fmt.Println("* appointment marked completed")
	}
	if res.Reason != session.ReasonLocal && res.Reason != session.ReasonRelayClosed {
		return 1
	}
	return 0
}

// readCommands turns stdin lines into chat messages and call controls.
func readCommands(ctx context.Context, s *session.Session) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
		case "/end":
			s.End(ctx, session.ReasonLocal)
			return
		case "/mic":
			toggle(s, domain.TrackAudio, "microphone")
		case "/cam":
			toggle(s, domain.TrackVideo, "camera")
		default:
			if !s.Chat().Send(ctx, line) {
				fmt.Println("* message not sent")
			}
		}
	}
}

func toggle(s *session.Session, kind domain.TrackKind, name string) {
	lm := s.Media()
	if lm == nil {
		fmt.Printf("* no %s, receive-only session\n", name)
		return
	}
	enabled, ok := lm.Toggle(kind)
	switch {
	case !ok:
		fmt.Printf("* no %s\n", name)
	case enabled:
		fmt.Printf("* %s on\n", name)
	default:
		fmt.Printf("* %s off\n", name)
	}
}

func printChat(lines []core.ChatLine) {
	fmt.Println("--- chat ---")
	for _, l := range lines {
		ts := ""
		if !l.Timestamp.IsZero() {
			ts = l.Timestamp.Local().Format("15:04") + " "
		}
		fmt.Printf("%s%s: %s\n", ts, l.Label, l.Content)
	}
}
