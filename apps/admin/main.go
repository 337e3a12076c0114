package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/beet/core"
	"github.com/trezcool/beet/core/catalog"
	"github.com/trezcool/beet/core/portal"
	logsvc "github.com/trezcool/beet/services/logger"
	"github.com/trezcool/beet/storage"
	"github.com/trezcool/beet/storage/database"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()
	ctx := context.Background()
	cli := commandLine{conf: conf, out: os.Stdout}

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if conf.IsSQL() {
			db, err := database.Open(ctx, conf)
			errAndDie(err)
			defer db.Close()
			cli.db = db
		}
	} else {
		cat, err := catalog.Open(conf.Catalog.Path)
		errAndDie(err)

		backend, err := storage.Open(ctx, conf)
		errAndDie(err)
		defer backend.Close()

		validate := validator.New()
		translator := core.NewTranslator()
		core.InitValidators(validate, translator)
		portal.InitValidators(validate, translator, cat)

		svcLogger := logsvc.NewRollbarLogger(logger, conf)
		svcLogger.Enable(false)
		cli.svc = portal.NewService(backend.Repository, cat, validate, svcLogger)
	}

	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1) // nolint:gocritic
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
