package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/steinwealth/easyorb/internal/broker"
	"github.com/steinwealth/easyorb/internal/oauth"
)

var balanceCmd = &cobra.Command{
	Use:   "balance {sandbox|prod}",
	Short: "print the account balance",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		env := parseEnv(args[0])
		mgr, err := oauth.NewManager(cfg)
		requireNoError(err)

		ctx := context.Background()
		adapter := broker.NewETradeAdapter(cfg, mgr, env)
		accounts, err := adapter.ListAccounts(ctx)
		requireNoError(err)
		if len(accounts) == 0 {
			fmt.Println("no accounts found")
			return
		}

		bal, err := adapter.GetBalance(ctx, accounts[0].AccountIDKey)
		requireNoError(err)

		fmt.Printf("account:    %s\n", accounts[0].AccountID)
		fmt.Printf("cash:       $%s\n", humanize.Commaf(bal.CashAvailableForInvestment))
		fmt.Printf("value:      $%s\n", humanize.Commaf(bal.AccountValue))
		fmt.Printf("buy power:  $%s\n", humanize.Commaf(bal.BuyingPower))
	},
}
