// Command linkmeshd runs a standalone Link Manager node: it loads
// transport plugins, starts listeners, and serves as the process-wide
// receive dispatcher for every inbound envelope, the way the teacher's
// cmd/lncli wires urfave/cli flags into a running daemon (here, a
// daemon built around cli.App's Action instead of Commands, since this
// process has one job rather than a command per RPC).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/nodebridge/linkmesh/internal/directory"
	"github.com/nodebridge/linkmesh/internal/dispatch"
	"github.com/nodebridge/linkmesh/internal/linklog"
	"github.com/nodebridge/linkmesh/internal/linkmgr"
	"github.com/nodebridge/linkmesh/internal/listener"
	"github.com/nodebridge/linkmesh/internal/nodeid"
	"github.com/nodebridge/linkmesh/internal/registry"

	_ "github.com/nodebridge/linkmesh/plugins/tcptransport"
	_ "github.com/nodebridge/linkmesh/plugins/wstransport"
)

func main() {
	app := cli.NewApp()
	app.Name = "linkmeshd"
	app.Usage = "runtime-to-runtime link manager daemon"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "node-id",
			Usage: "this node's identity",
		},
		cli.StringFlag{
			Name:  "plugin-root",
			Usage: "directory of transport plugin manifests to scan",
		},
		cli.StringSliceFlag{
			Name:  "listen",
			Usage: "uri to listen on, e.g. tcp:0.0.0.0:9000 (repeatable; defaults to one per registered scheme)",
		},
		cli.StringFlag{
			Name:  "schemes",
			Usage: "comma-separated schemes to restrict plugin registration to (default: all)",
		},
		cli.StringFlag{
			Name:  "formats",
			Usage: "comma-separated formats to prefer, most preferred first (default: json)",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "panic|fatal|error|warn|info|debug|trace",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "[linkmeshd] %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	base := logrus.New()
	level, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log-level: %w", err)
	}
	base.SetLevel(level)
	log := linklog.NewWith(base, "linkmeshd")

	local := nodeid.FromString(c.String("node-id"))
	if len(local) == 0 {
		return fmt.Errorf("--node-id is required")
	}

	reg := registry.New(linklog.NewWith(base, "registry"))
	if root := c.String("plugin-root"); root != "" {
		schemes := splitCSV(c.String("schemes"))
		formats := splitCSV(c.String("formats"))
		if len(formats) == 0 {
			formats = []string{"json"}
		}

		dir := directory.NewInMemory()
		mgr := linkmgr.New(local, reg, dir, linklog.NewWith(base, "linkmgr"))
		d := dispatch.New(mgr, linklog.NewWith(base, "dispatch"))
		mgr.RegisterRecv(d.AsDataReceivedFunc())

		if err := reg.Register(root, local, mgr.Callbacks(), schemes, formats); err != nil {
			return fmt.Errorf("registering plugins: %w", err)
		}

		set := listener.New(reg, linklog.NewWith(base, "listener"))
		if err := set.Start(c.StringSlice("listen")); err != nil {
			return fmt.Errorf("starting listeners: %w", err)
		}

		log.Infof("linkmeshd running as %s, schemes=%v", local, reg.Schemes())
		waitForSignal()
		return nil
	}

	return fmt.Errorf("--plugin-root is required")
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func waitForSignal() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
}
