package main

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
)

func (a *app) probeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <window>",
		Short: "Report the dialect a window speaks",
		Long: `Probe reads the drop target properties of a window and reports
the first dialect that recognizes it, the window messages are delivered
to, and the capability record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			win, err := parseWindow(args[0])
			if err != nil {
				return err
			}
			c, err := a.open(nil)
			if err != nil {
				return err
			}
			defer c.close()

			b, t := c.registry.Resolve(win)
			if b == nil {
				fmt.Fprintf(a.out, "%#x: not a drop target\n", win)
				return nil
			}
			fmt.Fprintf(a.out, "%#x: %v\n", win, b.Name())
			fmt.Fprintf(a.out, "proxy: %#x\n", t.Proxy)
			fmt.Fprintf(a.out, "version: %d\n", t.Capability.Version)
			fmt.Fprintf(a.out, "style: %d\n", t.Capability.Style)
			if a.debug {
				fmt.Fprint(a.out, spew.Sdump(t))
			}
			return nil
		},
	}
	return cmd
}
