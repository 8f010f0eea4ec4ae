package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"

	"github.com/kikubooks/kiku/pkg/config"
	"github.com/kikubooks/kiku/pkg/database"
	"github.com/kikubooks/kiku/pkg/events"
	"github.com/kikubooks/kiku/pkg/migrations"
	"github.com/kikubooks/kiku/pkg/playback"
	"github.com/kikubooks/kiku/pkg/progress"
	"github.com/kikubooks/kiku/pkg/server"
	"github.com/kikubooks/kiku/pkg/stream"
	"github.com/kikubooks/kiku/pkg/version"
	"github.com/kikubooks/kiku/pkg/worker"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting kiku", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	if err := os.MkdirAll(cfg.StreamsDir(), 0o755); err != nil {
		log.Err(err).Fatal("streams directory error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	hub := events.NewHub()
	progressService := progress.NewService(db, hub)
	starter := stream.NewFFmpeg("", cfg.StreamsDir())
	manager := playback.NewManager(db, progressService, hub, starter, cfg)

	wrkr := worker.New(cfg, db)

	srv, err := server.New(cfg, db, hub, manager)
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()

	// Session sweeps run for the life of the process.
	sweepCtx, cancelSweep := context.WithCancel(log.WithContext(ctx))
	manager.RemoveOrphanStreams(sweepCtx)
	go manager.Run(sweepCtx, cfg.SessionSweepInterval)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}

		actualPort := listener.Addr().(*net.TCPAddr).Port
		log.Info("server started", logger.Data{"port": actualPort})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	wrkr.Start()
	log.Info("worker started")

	<-graceful
	log.Info("starting graceful shutdown")

	cancelSweep()

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	wrkr.Shutdown()
	log.Info("worker shutdown")

	// Close any sessions still open so listening time isn't lost.
	manager.CloseAllSessions(log.WithContext(ctx))

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}
