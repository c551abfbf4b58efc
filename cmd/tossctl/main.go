// Command tossctl is the admin CLI for tossd's RPC surface, built the same
// way dcrlncli wraps dcrlnd: one urfave/cli command per RPC call, a shared
// connection helper, and pretty-printed JSON responses.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "tossctl"
	app.Usage = "control plane for tossd"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rpcserver",
			Value: "localhost:8443",
			Usage: "host:port of tossd's admin RPC surface",
		},
		cli.StringFlag{
			Name:  "macaroonpath",
			Value: "",
			Usage: "path to a macaroon granting the required action",
		},
		cli.BoolFlag{
			Name:  "insecure",
			Usage: "use http instead of https when talking to tossd",
		},
		cli.BoolFlag{
			Name:  "json",
			Usage: "print raw JSON instead of a table",
		},
	}
	app.Commands = []cli.Command{
		statusCommand,
		forceCloseCommand,
		balanceCommand,
		watcherCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "[tossctl]", err)
		os.Exit(1)
	}
}

// actionDecorator wraps a command's action so a returned error is reported
// through cli's own error path, matching dcrlncli's actionDecorator.
func actionDecorator(f func(*cli.Context) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		if err := f(c); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		return nil
	}
}
