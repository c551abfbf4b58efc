package main

import (
	"github.com/urfave/cli"
)

var forceCloseCommand = cli.Command{
	Name:      "forceclose",
	Category:  "Toss",
	Usage:     "Force-close a toss and refund every participant.",
	ArgsUsage: "toss-id caller",
	Action:    actionDecorator(forceClose),
}

func forceClose(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "forceclose")
	}
	id := ctx.Args().Get(0)
	caller := ctx.Args().Get(1)

	var toss map[string]interface{}
	body := struct{ Caller string }{Caller: caller}
	if err := doRequest(ctx, "POST", "/v1/toss/"+id+"/force-close", body, &toss); err != nil {
		return err
	}

	printRespJSON(toss)
	return nil
}
