package main

import (
	"os"

	"github.com/jedib0t/go-pretty/table"
	"github.com/urfave/cli"
)

var watcherCommand = cli.Command{
	Name:     "watcher",
	Category: "Wallet",
	Usage:    "List every escrow wallet currently under watch.",
	Action:   actionDecorator(watcherList),
}

type watcherWallet struct {
	Address          string `json:"address"`
	TossId           string `json:"tossId"`
	LastScannedBlock uint64 `json:"lastScannedBlock"`
}

func watcherList(ctx *cli.Context) error {
	var wallets []watcherWallet
	if err := doRequest(ctx, "GET", "/v1/watcher", nil, &wallets); err != nil {
		return err
	}

	if ctx.GlobalBool("json") {
		printRespJSON(wallets)
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"address", "toss id", "last scanned block"})
	for _, w := range wallets {
		t.AppendRow(table.Row{w.Address, w.TossId, w.LastScannedBlock})
	}
	t.Render()
	return nil
}
