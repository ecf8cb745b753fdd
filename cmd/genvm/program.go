package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/chazu/genvm/compiler"
	"github.com/chazu/genvm/store"
	"github.com/chazu/genvm/vm"
)

// compileFile reads and compiles a script. An empty path falls back to the
// manifest's project entry.
func (a *app) compileFile(path string) (*vm.Program, error) {
	if path == "" {
		path = a.cfg.EntryPath()
		if path == "" {
			return nil, fmt.Errorf("no script given and no project.entry configured")
		}
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := compiler.Compile(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debugf("compiled %s: %d functions, hash %s", path, len(prog.Functions), prog.Hash()[:12])
	return prog, nil
}

// load compiles path and runs its top level on a fresh engine.
func (a *app) load(path string, out io.Writer) (*vm.Program, *vm.Engine, error) {
	prog, err := a.compileFile(path)
	if err != nil {
		return nil, nil, err
	}
	opts := append(a.cfg.EngineOptions(), vm.WithOutput(out))
	e := vm.NewEngine(opts...)
	if err := e.Run(prog); err != nil {
		prog.Close()
		return nil, nil, err
	}
	return prog, e, nil
}

func (a *app) openStore() (*store.Store, error) {
	return store.Open(a.cfg.StorePath())
}

// parseArg turns a command-line argument into a script value: numbers,
// booleans, null and undefined are recognised, everything else is a string.
func parseArg(s string) vm.Value {
	switch s {
	case "true":
		return vm.True
	case "false":
		return vm.False
	case "null":
		return vm.Null
	case "undefined":
		return vm.Undefined
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return vm.Number(n)
	}
	return vm.String(s)
}
