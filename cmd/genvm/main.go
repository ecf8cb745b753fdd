// genvm runs generator scripts and parks suspended generators in a
// snapshot store so they can be resumed by a later process.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"github.com/chazu/genvm/manifest"
	"github.com/chazu/genvm/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("genvm.cli")

// app holds the state shared by every subcommand.
type app struct {
	verbosity  int
	configPath string
	storePath  string
	trace      bool

	cfg *manifest.Manifest
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var thrown *vm.ThrowError
		if errors.As(err, &thrown) {
			fmt.Fprintf(os.Stderr, "%+v\n", thrown)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "genvm",
		Short:         "Run generator scripts and resume parked generators",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.CountVarP(&a.verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	flags.StringVar(&a.configPath, "config", "", "path to genvm.toml (default: search upward from the working directory)")
	flags.StringVar(&a.storePath, "store", "", "snapshot database (overrides store.path)")
	flags.BoolVar(&a.trace, "trace", false, "log every dispatched instruction")

	root.AddCommand(
		newRunCmd(a),
		newDisasmCmd(a),
		newStepCmd(a),
		newResumeCmd(a),
		newSnapshotsCmd(a),
	)
	return root
}

// setup loads the manifest and configures logging.
func (a *app) setup() error {
	var err error
	switch {
	case a.configPath != "":
		a.cfg, err = manifest.LoadFile(a.configPath)
	default:
		a.cfg, err = manifest.FindAndLoad(".")
	}
	if err != nil {
		return err
	}
	if a.cfg == nil {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		a.cfg = manifest.Default(wd)
	}
	if a.storePath != "" {
		a.cfg.Store.Path = a.storePath
	}
	if a.trace {
		a.cfg.Engine.Trace = true
	}

	verbosity := a.cfg.Log.Verbosity
	if a.verbosity > 0 {
		verbosity = a.verbosity
	}
	if a.cfg.Engine.Trace && verbosity < 2 {
		verbosity = 2
	}
	var logFile *string
	if a.cfg.Log.File != "" {
		logFile = &a.cfg.Log.File
	}
	commonlog.Configure(verbosity, logFile)

	if a.cfg.Dir != "" {
		log.Debugf("config dir %s", a.cfg.Dir)
	}
	return nil
}
