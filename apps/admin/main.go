package main

import (
	"context"
	"database/sql"
	"log"
	"os"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/lesson"
	logsvc "github.com/chekos/pedagogical-engine/services/logger"
	"github.com/chekos/pedagogical-engine/storage/database"
	inmemdb "github.com/chekos/pedagogical-engine/storage/database/inmem"
	sqlxrepos "github.com/chekos/pedagogical-engine/storage/database/sqlx"
	"github.com/chekos/pedagogical-engine/storage/files"
	"github.com/chekos/pedagogical-engine/storage/search"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	cli := commandLine{out: os.Stdout}

	// set up DB
	if conf.Database.Engine == "postgres" {
		if err := database.CreateIfNotExist(conf); err != nil {
			logger.Fatal("setting up database", err)
		}
		db, err := database.Open(conf)
		if err != nil {
			logger.Fatal("opening database", err)
		}
		defer db.Close()
		cli.db = db.DB
		cli.usrRepo = sqlxrepos.NewUserRepository(db)
	} else {
		cli.usrRepo = inmemdb.NewUserRepository(inmemdb.NewDB())
	}

	// set up file storage
	store, err := files.NewStoreFromConfig(conf)
	if err != nil {
		logger.Fatal("opening data directory", err)
	}
	index, err := search.NewIndexFromConfig(conf)
	if err != nil {
		logger.Fatal("opening search index", err)
	}
	defer index.Close()

	skillRepo := files.NewSkillRepository(store)
	learnerRepo := files.NewLearnerRepository(store)
	cli.skillRepo = skillRepo
	cli.lessonSvc = lesson.NewService(files.NewLessonRepository(store), index, skillRepo, learnerRepo)

	// start CLI
	if err := cli.run(context.Background(), os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		closeAndExit(cli.db, 1)
	}
}

// closeAndExit closes the DB before os.Exit skips the deferred calls
func closeAndExit(db *sql.DB, code int) {
	if db != nil {
		_ = db.Close()
	}
	os.Exit(code)
}
