package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hirelink/interviewcore/internal/avatar"
	"github.com/hirelink/interviewcore/internal/config"
	"github.com/hirelink/interviewcore/internal/core"
	"github.com/hirelink/interviewcore/internal/domain"
	"github.com/hirelink/interviewcore/internal/httpapi"
	"github.com/hirelink/interviewcore/internal/media"
	"github.com/hirelink/interviewcore/internal/orch"
	"github.com/hirelink/interviewcore/internal/rtc"
	signaling "github.com/hirelink/interviewcore/internal/signal"
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

	observer := orch.LogObserver{}

	source, err := media.NewSource(func(msg string) {
		observer.OnNotice(core.Notice{Level: core.NoticeWarn, ID: "device-fallback", Text: msg})
	})
	if err != nil {
		log.Fatal().Err(err).Msg("media source")
	}

	selection, err := domain.LoadDeviceSelection(cfg.Media.SelectionPath)
	if err != nil {
		log.Warn().Err(err).Msg("device selection unreadable, using defaults")
	}

	factory := rtc.NewFactory(source.CodecSelector(), cfg.ICE.GatherTimeout)

	var ctl httpapi.SessionController
	var teardown func()

	switch cfg.Mode {
	case "avatar":
		api := avatar.NewClient(cfg.Avatar.BaseURL, cfg.Avatar.APIKey)
		adapter := avatar.NewAdapter(api, factory, observer.OnCaption)
		session := orch.NewAvatarSession(source, adapter, observer, selection)
		if err := session.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("avatar session setup")
		}
		ctl, teardown = session, session.Close
	default:
		o := orch.New(orch.Deps{
			Channel: func(h core.RoomHandler) core.SignalChannel {
				return signaling.NewClient(cfg.Signal.URL, h)
			},
			Media:      source,
			Peers:      factory,
			Observer:   observer,
			ICEServers: iceServers(cfg.ICE.URLs),
			Selection:  selection,
		})
		if err := o.Start(ctx, cfg.Signal.Token, domain.RoomID(cfg.Signal.Room)); err != nil {
			log.Fatal().Err(err).Msg("session setup")
		}
		ctl, teardown = o, o.Close
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.SetupRouter(ctl),
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("control surface started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	teardown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Session exited gracefully")
}

func iceServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		return rtc.DefaultICEServers()
	}
	out := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		out = append(out, webrtc.ICEServer{URLs: []string{u}})
	}
	return out
}
