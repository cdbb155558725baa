package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/pamoja/apps/api/echo"
	"github.com/trezcool/pamoja/core"
	"github.com/trezcool/pamoja/core/access"
	"github.com/trezcool/pamoja/core/branch"
	"github.com/trezcool/pamoja/core/membership"
	"github.com/trezcool/pamoja/core/org"
	"github.com/trezcool/pamoja/core/partnership"
	"github.com/trezcool/pamoja/core/user"
	emailsvc "github.com/trezcool/pamoja/services/email"
	logsvc "github.com/trezcool/pamoja/services/logger"
	"github.com/trezcool/pamoja/storage/database"
	sqlxrepos "github.com/trezcool/pamoja/storage/database/sqlx"
)

func main() {
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		core.Conf,
	)
	logger.Enable(!core.Conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(core.Conf); err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	sdb, err := database.Open(core.Conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	if err = database.Migrate(sdb); err != nil {
		logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}
	db := sqlx.NewDb(sdb, core.Conf.Database.Engine)
	defer func() { _ = db.Close() }()

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}

	usrRepo := sqlxrepos.NewUserRepository(db)
	orgRepo := sqlxrepos.NewOrgRepository(db)
	memRepo := sqlxrepos.NewMembershipRepository(db)
	branchRepo := sqlxrepos.NewBranchRepository(db)
	partRepo := sqlxrepos.NewPartnershipRepository(db)

	usrSvc := user.NewService(usrRepo, mailSvc)
	orgSvc := org.NewService(orgRepo)
	memSvc := membership.NewService(memRepo, usrRepo, mailSvc)
	branchSvc := branch.NewService(branchRepo, orgRepo, memRepo, usrRepo, mailSvc)
	partSvc := partnership.NewService(partRepo, memRepo, usrRepo, mailSvc)

	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator)
	org.RegisterValidators(validate, translator)
	membership.RegisterValidators(validate, translator)
	partnership.RegisterValidators(validate, translator)

	logger.Info(fmt.Sprintf("Application initializing : version %q", core.Conf.Build))
	defer logger.Info("Application stopped")

	// start API server
	server := echoapi.NewServer(&echoapi.Options{
		Address:        core.Conf.Server.Address(),
		UserSvc:        usrSvc,
		OrgSvc:         orgSvc,
		MembershipSvc:  memSvc,
		BranchSvc:      branchSvc,
		PartnershipSvc: partSvc,
		Policy:         access.NewPolicy(memRepo),
		Scope:          access.NewScope(memRepo, orgRepo, usrRepo, partRepo),
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
	})

	go server.Start()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err = server.Stop(ctx); err != nil {
		logger.Fatal(fmt.Sprintf("could not stop server gracefully: %v", err), err)
	}
}
