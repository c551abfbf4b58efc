package main

import (
	"fmt"

	"github.com/urfave/cli"
)

var balanceCommand = cli.Command{
	Name:      "balance",
	Category:  "Wallet",
	Usage:     "Look up a user's wallet balance.",
	ArgsUsage: "user-id",
	Action:    actionDecorator(balance),
}

func balance(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "balance")
	}
	userId := ctx.Args().Get(0)

	var resp struct {
		UserId  string `json:"userId"`
		Balance string `json:"balance"`
	}
	if err := doRequest(ctx, "GET", "/v1/wallet/"+userId+"/balance", nil, &resp); err != nil {
		return err
	}

	if ctx.GlobalBool("json") {
		printRespJSON(resp)
		return nil
	}
	fmt.Printf("%s: %s\n", resp.UserId, resp.Balance)
	return nil
}
