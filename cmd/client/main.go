package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/veriface/veriface/internal/adapters/document"
	"github.com/veriface/veriface/internal/adapters/media"
	"github.com/veriface/veriface/internal/adapters/rtc"
	signaling "github.com/veriface/veriface/internal/adapters/signal"
	"github.com/veriface/veriface/internal/adapters/ui"
	"github.com/veriface/veriface/internal/adapters/verify"
	"github.com/veriface/veriface/internal/app/session"
	"github.com/veriface/veriface/internal/config"
	"github.com/veriface/veriface/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	sinks := []core.StateSink{ui.LogSink{}}

	var uiSrv *http.Server
	if cfg.UIAddr != "" {
		hub := ui.NewHub()
		sinks = append(sinks, hub)
		uiSrv = &http.Server{
			Addr:    cfg.UIAddr,
			Handler: ui.SetupRouter(ctx, cfg.Mode, hub),
		}
		go func() {
			log.Info().Str("addr", cfg.UIAddr).Msg("renderer event feed started")
			if err := uiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("ui server error")
			}
		}()
	}

	manager := session.NewManager(
		session.Options{
			STUNServers:      cfg.STUNServers,
			GatheringTimeout: cfg.ICEGatheringTimeout,
			ChannelLabel:     cfg.ChannelLabel,
		},
		signaling.NewClient(cfg.SignalingURL),
		verify.NewClient(cfg.VerifyURL),
		media.NewIVFSource(cfg.MediaFile, cfg.FrameRate),
		document.NewFileSource(cfg.DocumentPath),
		func(stunServers []string, sid string) (core.PeerLink, error) {
			return rtc.NewConnection(rtc.WebRTCConfig(stunServers), sid)
		},
		sinks...,
	)

	if err := manager.Start(ctx); err != nil {
		if errors.Is(err, core.ErrMissingDocument) {
			log.Fatal().Msg("upload an identity document first (set document_path)")
		}
		log.Fatal().Err(err).Msg("failed to start session")
	}

	select {
	case <-manager.Done():
		log.Info().Msg("session finished")
	case <-ctx.Done():
		log.Info().Msg("interrupted, stopping session")
		manager.Stop()
	}

	if uiSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := uiSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("ui server forced to shutdown")
		}
	}
	log.Info().Msg("client exited gracefully")
}
