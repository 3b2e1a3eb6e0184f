package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/arcfront/shellbus/config"
	"github.com/arcfront/shellbus/internal/devtools/dash"
)

const (
	ServiceName      = "shellbus"
	ServiceNamespace = "arcfront"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	app := &cli.App{
		Name:    ServiceName,
		Usage:   "Microfrontend shell core: event bus, remote loader, devtools",
		Version: version,
		Commands: []*cli.Command{
			serverCmd(),
			dashCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s", "serve"},
		Usage:   "Run the shell host",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config_file",
				Usage: "Path to the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config_file"))
			if err != nil {
				return err
			}
			app := NewApp(cfg)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("Shutting down...")
			return app.Stop(context.Background())
		},
	}
}

func dashCmd() *cli.Command {
	return &cli.Command{
		Name:  "dash",
		Usage: "Terminal dashboard over a running shell's event stream",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: "localhost:8090",
				Usage: "Host:port of the running shell",
			},
			&cli.IntFlag{
				Name:  "replay",
				Value: 50,
				Usage: "History depth to replay on connect",
			},
		},
		Action: func(c *cli.Context) error {
			return dash.Run(c.Context, dash.Options{
				Addr:   c.String("addr"),
				Replay: c.Int("replay"),
			})
		},
	}
}
