// Dndprobe inspects drag and drop state on an X display.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jmigpin/dnd/display"
	"github.com/jmigpin/dnd/display/memdisplay"
	"github.com/jmigpin/dnd/driver/xdriver"
	"github.com/jmigpin/dnd/formats"
	"github.com/jmigpin/dnd/metrics"
	"github.com/jmigpin/dnd/protocol"
	"github.com/jmigpin/dnd/protocol/motif"
	"github.com/jmigpin/dnd/protocol/xdnd"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func main() {
	a := newApp(os.Stdout)
	if err := a.rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

//----------

type app struct {
	out io.Writer

	displayName string
	dryRun      bool
	debug       bool
	retryDelay  time.Duration

	// Overridable for tests.
	openMem func() *memdisplay.Display
}

func newApp(out io.Writer) *app {
	return &app{out: out, openMem: memdisplay.New}
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dndprobe",
		Short: "Inspect drag and drop targets and traffic",
		Long: `Dndprobe reports which drag and drop dialect a window speaks,
dumps the shared format list table, watches drag messages
arriving at a window and runs test drags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&a.displayName, "display", "", "X display (default $DISPLAY)")
	pf.BoolVar(&a.dryRun, "dry-run", false, "use an in-memory display")
	pf.BoolVar(&a.debug, "debug", false, "debug output")
	pf.DurationVar(&a.retryDelay, "retry-delay", 500*time.Millisecond, "drop site registration retry delay")

	cmd.SetOut(a.out)
	cmd.AddCommand(
		a.probeCmd(),
		a.tableCmd(),
		a.watchCmd(),
		a.dragCmd(),
	)
	return cmd
}

//----------

// conn is an opened display with the dialects bound to it.
type conn struct {
	d        display.Display
	xd       *xdriver.Display // nil on dry runs
	broker   *formats.Broker
	registry *protocol.Registry
	atomName func(display.Atom) string
	close    func()
}

func (a *app) open(m *metrics.Metrics) (*conn, error) {
	c := &conn{}
	if a.dryRun {
		md := a.openMem()
		c.d = md
		c.atomName = md.AtomName
		c.close = func() {}
	} else {
		xd, err := xdriver.NewDisplay(a.displayName)
		if err != nil {
			return nil, err
		}
		c.d, c.xd = xd, xd
		c.atomName = func(at display.Atom) string {
			s, err := xd.AtomName(at)
			if err != nil {
				return fmt.Sprintf("#%d", at)
			}
			return s
		}
		c.close = xd.Close
	}

	b, err := formats.NewBroker(c.d)
	if err != nil {
		c.close()
		return nil, err
	}
	b.OnRecreate = m.BrokerRecreated
	mo, err := motif.New(c.d, b)
	if err != nil {
		c.close()
		return nil, err
	}
	x, err := xdnd.New(c.d)
	if err != nil {
		c.close()
		return nil, err
	}
	c.broker = b
	c.registry = protocol.NewRegistry(mo, x)
	return c, nil
}

func parseWindow(s string) (display.Window, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return display.None, errors.Wrapf(err, "window %q", s)
	}
	return display.Window(v), nil
}
