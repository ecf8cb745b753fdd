package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chazu/genvm/store"
	"github.com/chazu/genvm/vm"
	"github.com/chazu/genvm/vm/snapshot"
)

// ---------------------------------------------------------------------------
// run, disasm
// ---------------------------------------------------------------------------

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run [FILE]",
		Short: "Compile and run a script",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, _, err := a.load(firstArg(args), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return prog.Close()
		},
	}
}

func newDisasmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disasm [FILE]",
		Short: "Print the bytecode of every function in a script",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := a.compileFile(firstArg(args))
			if err != nil {
				return err
			}
			defer prog.Close()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "; program %s\n", prog.Hash())
			for _, fn := range prog.Functions {
				fmt.Fprintln(out)
				fmt.Fprint(out, fn.Disassemble())
			}
			return nil
		},
	}
}

func firstArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

// ---------------------------------------------------------------------------
// step, resume
// ---------------------------------------------------------------------------

func newStepCmd(a *app) *cobra.Command {
	var steps int
	var save bool
	cmd := &cobra.Command{
		Use:   "step FILE FUNC [ARG...]",
		Short: "Create a generator and advance it",
		Long: `Runs FILE, calls the generator function FUNC with the given arguments
and calls next() on the result --steps times, printing each result. With
--save a generator that is still suspended is parked in the snapshot store
and its id printed.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			prog, e, err := a.load(args[0], out)
			if err != nil {
				return err
			}
			defer prog.Close()

			var callArgs []vm.Value
			for _, s := range args[2:] {
				callArgs = append(callArgs, parseArg(s))
			}
			gv, err := e.CallGlobal(args[1], callArgs...)
			if err != nil {
				return err
			}
			g := gv.AsGenerator()
			if g == nil {
				return fmt.Errorf("%s did not return a generator (got %s)", args[1], gv.Inspect())
			}

			if err := advance(g, steps, out); err != nil {
				return err
			}
			if !save {
				return nil
			}
			if g.State() == vm.GeneratorCompleted {
				fmt.Fprintln(out, "generator completed; nothing to save")
				return nil
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			if err := park(st, e, g); err != nil {
				return err
			}
			fmt.Fprintf(out, "saved %s\n", g.ID())
			return nil
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of next() calls")
	cmd.Flags().BoolVar(&save, "save", false, "park the generator in the snapshot store")
	return cmd
}

func newResumeCmd(a *app) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "resume FILE ID",
		Short: "Continue a parked generator",
		Long: `Runs FILE, restores the generator stored under ID and calls next() on it
--steps times. A generator that is still suspended afterwards is saved back
under the same id; a completed one is removed from the store.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			data, _, err := st.Load(args[1])
			if err != nil {
				return err
			}
			snap, err := snapshot.Unmarshal(data)
			if err != nil {
				return fmt.Errorf("snapshot %s: %w", args[1], err)
			}

			prog, e, err := a.load(args[0], out)
			if err != nil {
				return err
			}
			defer prog.Close()

			g, err := snapshot.Restore(e, prog, snap)
			if err != nil {
				return fmt.Errorf("snapshot %s: %w", args[1], err)
			}
			log.Infof("resumed %s in %s", g.ID(), g.Function().Name)

			if err := advance(g, steps, out); err != nil {
				return err
			}
			if g.State() == vm.GeneratorCompleted {
				fmt.Fprintf(out, "completed %s\n", g.ID())
				return st.Delete(g.ID())
			}
			if err := park(st, e, g); err != nil {
				return err
			}
			fmt.Fprintf(out, "saved %s\n", g.ID())
			return nil
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of next() calls")
	return cmd
}

// advance calls next() up to n times, stopping early once g completes. A
// script exception ends the generator and is returned.
func advance(g *vm.Generator, n int, out io.Writer) error {
	for i := 0; i < n && g.State() != vm.GeneratorCompleted; i++ {
		r, err := g.Next(vm.Undefined)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, r.Inspect())
	}
	return nil
}

func park(st *store.Store, e *vm.Engine, g *vm.Generator) error {
	snap, err := snapshot.Take(e, g)
	if err != nil {
		return err
	}
	data, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}
	return st.Save(snap.ID, snap.ProgramHash, data)
}

// ---------------------------------------------------------------------------
// snapshots
// ---------------------------------------------------------------------------

func newSnapshotsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List parked generators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			recs, err := st.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, "no snapshots")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPROGRAM\tCREATED\tSIZE")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", r.ID, shortHash(r.ProgramHash), r.CreatedAt.Format("2006-01-02 15:04:05"), r.Size)
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rm ID...",
		Short: "Delete parked generators",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			var errs []error
			for _, id := range args {
				if err := st.Delete(id); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	})
	return cmd
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
