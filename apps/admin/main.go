package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/pamoja/core"
	"github.com/trezcool/pamoja/storage/database"
	sqlxrepos "github.com/trezcool/pamoja/storage/database/sqlx"
)

var logger *log.Logger // todo: logger service

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	// set up DB
	errAndDie(database.CreateIfNotExist(core.Conf))
	sdb, err := database.Open(core.Conf)
	errAndDie(err)
	defer func() { _ = sdb.Close() }()
	errAndDie(sdb.Ping())

	db := sqlx.NewDb(sdb, core.Conf.Database.Engine)

	// start CLI
	cli := commandLine{
		db:      sdb,
		usrRepo: sqlxrepos.NewUserRepository(db),
		orgRepo: sqlxrepos.NewOrgRepository(db),
		memRepo: sqlxrepos.NewMembershipRepository(db),
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
