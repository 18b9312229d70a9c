package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blecentral/pkg/adapter"
)

type stateOptions struct {
	watch    bool
	until    string
	duration time.Duration
}

func newStateCmd() *cobra.Command {
	opts := &stateOptions{}
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the Bluetooth adapter state",
		Long: `Prints the power state of the Bluetooth adapter. With --watch every change
is printed until --until is reached, --duration elapsed or Ctrl+C is pressed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runState(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Keep printing state changes")
	cmd.Flags().StringVar(&opts.until, "until", "", "With --watch, stop once the adapter reaches this state")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "With --watch, stop after this long (0 for no limit)")
	return cmd
}

func parseState(s string) (adapter.State, error) {
	for st := adapter.StateUnknown; st <= adapter.StatePoweredOn; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return adapter.StateUnknown, fmt.Errorf("invalid state '%s': must be one of unknown, resetting, unsupported, unauthorized, poweredOff, poweredOn", s)
}

func runState(cmd *cobra.Command, opts *stateOptions) error {
	var until adapter.State
	if opts.until != "" {
		if !opts.watch {
			return fmt.Errorf("--until requires --watch")
		}
		st, err := parseState(opts.until)
		if err != nil {
			return err
		}
		until = st
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	w := cmd.OutOrStdout()
	if !opts.watch {
		printState(w, a.session.State())
		return nil
	}

	ctx, cancel := commandContext(cmd, opts.duration)
	defer cancel()

	// Subscribe before reading the current state so no transition falls in between.
	changes := a.session.ObserveState()
	defer changes.Close()

	current := a.session.State()
	printState(w, current)
	if opts.until != "" && current == until {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			if interrupted(ctx) {
				return ctx.Err()
			}
			return nil
		case st, ok := <-changes.C:
			if !ok {
				return nil
			}
			printState(w, st)
			if opts.until != "" && st == until {
				return nil
			}
		}
	}
}

func printState(w io.Writer, s adapter.State) {
	fmt.Fprintf(w, "Adapter state: %s\n", s)
}
