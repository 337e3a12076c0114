package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/beet/core"
	"github.com/trezcool/beet/core/portal"
)

var (
	isTerminalFunc = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) } // mockable

	errHelp   = errors.New("help provided")
	errNotSQL = errors.New("migrations only apply to the sqlite and postgres backends")
)

type commandLine struct {
	conf *core.Config
	out  io.Writer
	db   *sqlx.DB        // set for migrate only
	svc  *portal.Service // set for every other command
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]        - run a goose command (up, down, status, version, redo, reset, up-to N, down-to N)")
	fmt.Fprintln(cli.out, "  token -learner ID             - generate an API token for the learner")
	fmt.Fprintln(cli.out, "  show -learner ID              - print the learner's progress and modules")
	fmt.Fprintln(cli.out, "  heal -learner ID              - clear the learner's stale module completion flags")
	fmt.Fprintln(cli.out, "  reset -learner ID -key KEY    - clear one of the learner's progress values")
}

// learnerFlagSet returns a flag set with the -learner flag every progress command takes.
func learnerFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	learner := fs.String("learner", "", "The learner's ID.")
	return fs, learner
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	tokenCmd, tokenLearner := learnerFlagSet("token")
	showCmd, showLearner := learnerFlagSet("show")
	healCmd, healLearner := learnerFlagSet("heal")
	resetCmd, resetLearner := learnerFlagSet("reset")
	resetKey := resetCmd.String("key", "", "The progress key to clear.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenLearner == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenLearner)
	case "show":
		if err := showCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *showLearner == "" {
			showCmd.Usage()
			return errHelp
		}
		return cli.show(*showLearner)
	case "heal":
		if err := healCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *healLearner == "" {
			healCmd.Usage()
			return errHelp
		}
		return cli.heal(*healLearner)
	case "reset":
		if err := resetCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetLearner == "" || *resetKey == "" {
			resetCmd.Usage()
			return errHelp
		}
		return cli.reset(*resetLearner, *resetKey)
	default:
		cli.printUsage()
		return errHelp
	}
}
