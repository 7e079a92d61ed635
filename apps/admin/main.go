package main

import (
	"log"
	"os"

	"github.com/gopiashokan/Educational-Management-System/core"
	"github.com/gopiashokan/Educational-Management-System/core/handwriting"
	"github.com/gopiashokan/Educational-Management-System/storage/database"
	sqlxrepos "github.com/gopiashokan/Educational-Management-System/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig("develop")
	errAndDie(err)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	// start CLI
	cli := commandLine{
		db:      db,
		usrRepo: sqlxrepos.NewUserRepository(db),
		hwSvc: handwriting.NewService(
			conf,
			handwriting.NewFileModelStore(conf.Handwriting.ModelPath),
			core.NopLogger,
		),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
