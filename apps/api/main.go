package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	echoapi "github.com/trezcool/beet/apps/api/echo"
	"github.com/trezcool/beet/core"
	"github.com/trezcool/beet/core/catalog"
	"github.com/trezcool/beet/core/portal"
	emailsvc "github.com/trezcool/beet/services/email"
	logsvc "github.com/trezcool/beet/services/logger"
	"github.com/trezcool/beet/storage"
)

func main() {
	if err := run(); err != nil {
		log.Println("main: error:", err)
		os.Exit(1)
	}
}

func run() error {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!(conf.Debug || conf.TestMode))

	cat, err := catalog.Open(conf.Catalog.Path)
	if err != nil {
		return errors.Wrap(err, "loading catalog")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// set up storage; the API keeps serving from memory when the backend is unavailable
	backend := storage.OpenOrFallback(ctx, conf, logger)
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("closing storage", err)
		}
	}()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q, storage %q", conf.Build, backend.Name))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	portal.InitValidators(validate, translator, cat)

	portalSvc := portal.NewService(backend.Repository, cat, validate, logger)

	// module completion emails to the coordinators
	if to := conf.NotifyAddresses(logger); len(to) > 0 {
		unsubscribe := portalSvc.NotifyCompletions(emailsvc.New(conf, logger), to...)
		defer unsubscribe()
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("storage").Set(backend.Name)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	g, shutdown := errgroup.WithContext(ctx)

	server := echoapi.NewServer(&echoapi.Options{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		PortalSvc:  portalSvc,
	})

	g.Go(func() error {
		logger.Info("API listening on " + conf.Server.Address)
		return errors.Wrap(server.Start(), "server error")
	})

	if backend.Watcher != nil {
		g.Go(func() error {
			// progress written by other processes is streamed to subscribers
			if err := portalSvc.Progress().Watch(shutdown, backend.Watcher); err != nil {
				logger.Error("progress watcher stopped", err)
			}
			return nil
		})
	}

	// =========================================================================
	// Shutdown

	g.Go(func() error {
		<-shutdown.Done()
		logger.Info("Start shutdown...")

		sctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Stop(sctx); err != nil {
			return errors.Wrap(err, "could not stop server gracefully")
		}
		return nil
	})

	err = g.Wait()

	// persist what was kept in memory while the storage was failing
	fctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	if ferr := portalSvc.Progress().Flush(fctx); ferr != nil {
		logger.Error("progress kept in memory could not be persisted", ferr)
	}
	return err
}
