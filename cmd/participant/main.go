package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Meet/internal/adapters/capture"
	router "github.com/dkeye/Meet/internal/adapters/http"
	"github.com/dkeye/Meet/internal/adapters/relay"
	"github.com/dkeye/Meet/internal/adapters/rtc"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/metrics"
)

func main() {
	var (
		roomFlag  string
		userFlag  string
		relayFlag string
		muted     bool
		noVideo   bool
	)

	root := &cobra.Command{
		Use:   "participant",
		Short: "Headless meeting participant for the Meet relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if roomFlag != "" {
				cfg.Room = roomFlag
			}
			if userFlag != "" {
				cfg.UserID = userFlag
			}
			if relayFlag != "" {
				cfg.RelayURL = relayFlag
			}
			return run(cfg, !muted, !noVideo)
		},
	}
	root.Flags().StringVar(&roomFlag, "room", "", "room to join (overrides config)")
	root.Flags().StringVar(&userFlag, "user", "", "participant id (overrides config)")
	root.Flags().StringVar(&relayFlag, "relay-url", "", "relay base url (overrides config)")
	root.Flags().BoolVar(&muted, "muted", false, "join with audio disabled")
	root.Flags().BoolVar(&noVideo, "no-video", false, "join with video disabled")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("participant exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, audio, video bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so the rest of the wiring can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	self, err := domain.NewPeerID(cfg.UserID)
	if err != nil {
		return fmt.Errorf("user_id: %w", err)
	}
	if cfg.Room == "" {
		return fmt.Errorf("room is required")
	}
	room := domain.RoomID(cfg.Room)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	rtcCfg := rtc.DefaultWebRTCConfig()
	if len(cfg.STUNServers) > 0 {
		rtcCfg = webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: cfg.STUNServers}},
		}
	}

	link := relay.NewLink(cfg.RelayURL, room, self, cfg.PingPeriod)
	coord := app.NewCoordinator(
		app.Options{
			Self:      self,
			Room:      room,
			Roles:     domain.RoleTable{BotPrefix: cfg.BotPrefix, RecorderPrefix: cfg.RecPrefix},
			RelayChat: cfg.RelayChat,
		},
		app.Deps{
			Link:       link,
			Transports: rtc.NewFactory(rtcCfg),
			Capture:    capture.NewProvider(),
			Metrics:    m,
		},
	)

	events, stopEvents := coord.Events().Listen(128)
	defer stopEvents()
	go func() {
		for range events {
			// The headless participant only keeps state converged; a UI
			// frontend would render these.
		}
	}()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.DebugPort),
		Handler: router.SetupRouter(cfg, coord, reg),
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("debug server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("debug server error")
		}
	}()

	if err := coord.Connect(ctx, audio, video); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	log.Info().Str("room", string(room)).Str("self", string(self)).Msg("joined meeting")

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	coord.Disconnect()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Participant exited gracefully")
	return nil
}
