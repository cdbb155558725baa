package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/pamoja/core/membership"
	"github.com/trezcool/pamoja/core/org"
	"github.com/trezcool/pamoja/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sql.DB
	usrRepo user.Repository
	orgRepo org.Repository
	memRepo membership.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate [up|down|status|version|redo] - apply database migrations")
	fmt.Println("  addsuperadmin -org-kind KIND -org-name NAME -username USERNAME -email EMAIL - bootstrap an organization with a confirmed superadmin")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addSuperadminCmd := flag.NewFlagSet("addsuperadmin", flag.ExitOnError)
	addSuperadminOrgKind := addSuperadminCmd.String("org-kind", "", "The organization kind: school or company.")
	addSuperadminOrgName := addSuperadminCmd.String("org-name", "", "The organization name.")
	addSuperadminUname := addSuperadminCmd.String("username", "", "The superadmin's username.")
	addSuperadminEmail := addSuperadminCmd.String("email", "", "The superadmin's email.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		return cli.migrate(args[2:])
	case "addsuperadmin":
		if err := addSuperadminCmd.Parse(args[2:]); err != nil {
			return err
		}
		kind := org.Kind(*addSuperadminOrgKind)
		if !kind.Valid() || *addSuperadminOrgName == "" || *addSuperadminUname == "" || *addSuperadminEmail == "" {
			addSuperadminCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addSuperadminCmd.Usage()
			return errHelp
		}
		return cli.addSuperadmin(kind, *addSuperadminOrgName, *addSuperadminUname, *addSuperadminEmail, pwd)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
