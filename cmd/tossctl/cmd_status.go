package main

import (
	"os"

	"github.com/jedib0t/go-pretty/table"
	"github.com/urfave/cli"
)

var statusCommand = cli.Command{
	Name:      "status",
	Category:  "Toss",
	Usage:     "Look up a toss by id.",
	ArgsUsage: "toss-id",
	Action:    actionDecorator(status),
}

func status(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "status")
	}
	id := ctx.Args().Get(0)

	var toss map[string]interface{}
	if err := doRequest(ctx, "GET", "/v1/toss/"+id, nil, &toss); err != nil {
		return err
	}

	if ctx.GlobalBool("json") {
		printRespJSON(toss)
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	for _, key := range []string{"id", "topic", "status", "options", "stake", "result", "participants"} {
		if v, ok := toss[key]; ok {
			t.AppendRow(table.Row{key, v})
		}
	}
	t.Render()
	return nil
}
