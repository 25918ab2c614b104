package main

import (
	"fmt"
	"strings"

	"github.com/jmigpin/dnd/display"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func (a *app) tableCmd() *cobra.Command {
	var intern []string

	cmd := &cobra.Command{
		Use:   "table",
		Short: "Dump the shared format list table",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.open(nil)
			if err != nil {
				return err
			}
			defer c.close()

			if len(intern) > 0 {
				l := make([]uint32, 0, len(intern))
				for _, name := range intern {
					at, err := c.d.InternAtom(name)
					if err != nil {
						return err
					}
					l = append(l, uint32(at))
				}
				i, err := c.broker.Intern(l)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "interned: %d\n", i)
			}

			tab, err := c.broker.Table()
			if err != nil {
				if errors.Cause(err) == display.ErrNoProperty {
					fmt.Fprintln(a.out, "no broker window")
					return nil
				}
				return err
			}
			fmt.Fprintf(a.out, "version: %d, lists: %d\n", tab.Version, len(tab.Lists))
			for i, l := range tab.Lists {
				names := make([]string, len(l))
				for k, f := range l {
					names[k] = c.atomName(display.Atom(f))
				}
				fmt.Fprintf(a.out, "%d: %v\n", i, strings.Join(names, " "))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&intern, "intern", nil, "intern this format list (atom names) before dumping")
	return cmd
}
