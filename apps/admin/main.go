package main

import (
	"context"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/alyxedu/alyx/core"
	logsvc "github.com/alyxedu/alyx/services/logger"
	"github.com/alyxedu/alyx/storage/database"
	sqlxrepos "github.com/alyxedu/alyx/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	zl, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	logger := logsvc.NewZapLogger(zl.Named("ADMIN").Sugar())
	defer func() { _ = zl.Sync() }()

	// set up DB
	if err = database.CreateIfNotExist(context.Background(), conf); err != nil {
		logger.Fatal(errors.Wrap(err, "creating database").Error(), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(errors.Wrap(err, "opening database").Error(), err)
	}
	defer func() { _ = db.Close() }()
	if err = db.Ping(); err != nil {
		logger.Fatal(errors.Wrap(err, "pinging database").Error(), err)
	}

	// start CLI
	cli := commandLine{
		db:      db,
		usrRepo: sqlxrepos.NewUserRepository(sqlx.NewDb(db, conf.Database.Engine)),
		logger:  logger,
	}
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(err.Error(), err)
		}
		_ = db.Close()
		os.Exit(1)
	}
}
