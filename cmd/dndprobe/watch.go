package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/jmigpin/dnd/display"
	"github.com/jmigpin/dnd/driver/xdriver"
	"github.com/jmigpin/dnd/dropsite"
	"github.com/jmigpin/dnd/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func (a *app) watchCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch <window>",
		Short: "Register a drop site and log the drag messages it receives",
		Long: `Watch registers a window as a drop site with every dialect and logs
the decoded messages until interrupted. A window inside another client's
toplevel is served through a proxy window owned by dndprobe.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			win, err := parseWindow(args[0])
			if err != nil {
				return err
			}

			var m *metrics.Metrics
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				m = metrics.New(metrics.WithRegistry(reg))
				srv := &http.Server{
					Addr:    metricsAddr,
					Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Printf("metrics: %v", err)
					}
				}()
				defer srv.Close()
			}

			c, err := a.open(m)
			if err != nil {
				return err
			}
			defer c.close()

			sites := dropsite.New(dropsite.Options{
				Display:    c.d,
				Bindings:   c.registry.Bindings(),
				Metrics:    m,
				Debug:      a.debug,
				RetryDelay: a.retryDelay,
			})
			if err := sites.RegisterDropSite(win); err != nil {
				return err
			}
			defer func() {
				if err := sites.UnregisterDropSite(win); err != nil && err != dropsite.ErrNotRegistered {
					log.Printf("unregister: %v", err)
				}
			}()
			a.printSite(sites, win)

			if c.xd == nil {
				return nil // dry run: no events
			}

			dp := xdriver.NewDispatcher(c.xd, nil, sites)
			dp.Debug = a.debug
			dp.OnDelivery = func(dv *dropsite.Delivery) {
				in := dv.Incoming
				fmt.Fprintf(a.out, "%v %v: source=%#x site=%#x", dv.Binding.Name(), in.Kind, in.Source, dv.Site)
				if in.HasPoint {
					fmt.Fprintf(a.out, " at=%v", in.Point)
				}
				fmt.Fprintf(a.out, " action=%v\n", in.Action)
			}
			dp.Attach()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			go func() {
				<-ctx.Done()
				xevent.Quit(c.xd.XU)
			}()
			xevent.Main(c.xd.XU)
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	return cmd
}

func (a *app) printSite(sites *dropsite.Registry, win display.Window) {
	switch {
	case sites.PendingRetries() > 0:
		fmt.Fprintf(a.out, "%#x: waiting for a managed ancestor\n", win)
	case !sites.IsRegistered(win):
		fmt.Fprintf(a.out, "%#x: not registered\n", win)
	default:
		fmt.Fprintf(a.out, "%#x: registered\n", win)
	}
}
