package main

import (
	"fmt"

	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/jmigpin/dnd/display"
	"github.com/jmigpin/dnd/dragsource"
	"github.com/jmigpin/dnd/driver/xdriver"
	"github.com/jmigpin/dnd/protocol"
	"github.com/jmigpin/dnd/util/evreg"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func (a *app) dragCmd() *cobra.Command {
	var formats, actions []string

	cmd := &cobra.Command{
		Use:   "drag",
		Short: "Run a drag from a hidden source window",
		Long: `Drag grabs the pointer and offers the given formats to whatever
window is under it. Releasing a pointer button drops, Escape cancels,
Shift and Control change the requested action. The negotiation is
printed as it happens; no data is transferred, so a drop acknowledged
by the receiver ends the drag as successful.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			acts, err := parseActions(actions)
			if err != nil {
				return err
			}
			c, err := a.open(nil)
			if err != nil {
				return err
			}
			defer c.close()

			fl := make([]uint32, 0, len(formats))
			for _, name := range formats {
				at, err := c.d.InternAtom(name)
				if err != nil {
					return err
				}
				fl = append(fl, uint32(at))
			}

			src, err := c.d.CreateHiddenWindow()
			if err != nil {
				return err
			}
			defer c.d.DestroyWindow(src)

			opt := dragsource.Options{Display: c.d, Registry: c.registry, Debug: a.debug}
			if c.xd != nil {
				opt.Cursors = xdriver.NewCursors(c.xd.XU)
			}
			sm := dragsource.New(opt)
			unr := a.dragEvents(sm, func() {
				if c.xd != nil {
					xevent.Quit(c.xd.XU)
				}
			})
			defer unr.UnregisterAll()

			if err := sm.Start(src, acts, fl, display.CurrentTime); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "dragging from %#x: %v of %v\n", src, sm.Status().Action, acts)

			if c.xd == nil {
				sm.Cancel() // dry run: nothing will move the pointer
				return nil
			}
			dp := xdriver.NewDispatcher(c.xd, sm, nil)
			dp.Debug = a.debug
			dp.Attach()
			xevent.Main(c.xd.XU)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&formats, "formats", []string{"UTF8_STRING", "TEXT", "STRING"}, "offered formats (atom names)")
	cmd.Flags().StringSliceVar(&actions, "actions", []string{"copy", "move"}, "offered actions: copy, move, link")
	return cmd
}

// Prints the drag events; done is called once the drag is over.
func (a *app) dragEvents(sm *dragsource.StateMachine, done func()) *evreg.Unregister {
	unr := &evreg.Unregister{}
	unr.Add(sm.Events.Add(dragsource.EvAccepted, func(ev any) {
		e := ev.(*dragsource.AcceptedEvent)
		st := sm.Status()
		fmt.Fprintf(a.out, "accepted: %v by %#x (%v) at %v\n", e.Action, st.Target, st.Dialect, e.Point)
	}))
	unr.Add(sm.Events.Add(dragsource.EvRejected, func(ev any) {
		e := ev.(*dragsource.RejectedEvent)
		fmt.Fprintf(a.out, "rejected at %v\n", e.Point)
	}))
	// no data is transferred: the drop is done once acknowledged
	unr.Add(sm.Events.Add(dragsource.EvDropAcked, func(ev any) {
		e := ev.(*dragsource.DropAckedEvent)
		fmt.Fprintf(a.out, "drop acknowledged: %v\n", e.Action)
		sm.OnDropFinished(true, e.Action)
	}))
	unr.Add(sm.Events.Add(dragsource.EvFinished, func(ev any) {
		e := ev.(*dragsource.FinishedEvent)
		fmt.Fprintf(a.out, "finished: success=%v action=%v\n", e.Success, e.Action)
		done()
	}))
	return unr
}

func parseActions(u []string) (protocol.Action, error) {
	a := protocol.ActionNone
	for _, s := range u {
		switch s {
		case "copy":
			a |= protocol.ActionCopy
		case "move":
			a |= protocol.ActionMove
		case "link":
			a |= protocol.ActionLink
		default:
			return 0, errors.Errorf("unknown action: %q", s)
		}
	}
	return a, nil
}
