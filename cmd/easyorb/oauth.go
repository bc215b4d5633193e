package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	json "github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"

	"github.com/steinwealth/easyorb/internal/broker"
	"github.com/steinwealth/easyorb/internal/config"
	"github.com/steinwealth/easyorb/internal/oauth"
)

var oauthCmd = &cobra.Command{
	Use:   "oauth",
	Short: "manage the E*TRADE OAuth1 session",
}

var oauthStartCmd = &cobra.Command{
	Use:   "start {sandbox|prod}",
	Short: "run the interactive three-legged OAuth1 handshake",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		env := parseEnv(args[0])
		mgr, err := oauth.NewManager(cfg)
		requireNoError(err)

		err = mgr.Start(env, func(authURL string) (string, error) {
			fmt.Printf("Visit this URL to authorize EasyORB, then paste the verifier code:\n\n  %s\n\n", authURL)
			fmt.Print("Verifier: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return "", err
			}
			return trimNewline(line), nil
		})
		requireNoError(err)
		fmt.Println("OAuth session established.")
	},
}

var oauthStatusCmd = &cobra.Command{
	Use:   "status [sandbox|prod]",
	Short: "print the current token and renewal metrics",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mgr, err := oauth.NewManager(cfg)
		requireNoError(err)

		envs := []config.Environment{config.Sandbox, config.Production}
		if len(args) == 1 {
			envs = []config.Environment{parseEnv(args[0])}
		}

		statuses := make([]oauth.Status, len(envs))
		for i, env := range envs {
			statuses[i] = mgr.Status(env)
		}
		out, err := json.MarshalIndent(statuses, "", "  ")
		requireNoError(err)
		fmt.Println(string(out))
	},
}

var oauthKeepaliveCmd = &cobra.Command{
	Use:   "keepalive {sandbox|prod|both}",
	Short: "run the renewal and keep-alive loop until interrupted",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mgr, err := oauth.NewManager(cfg)
		requireNoError(err)

		var envs []config.Environment
		if args[0] == "both" {
			envs = []config.Environment{config.Sandbox, config.Production}
		} else {
			envs = []config.Environment{parseEnv(args[0])}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var wg sync.WaitGroup
		for _, env := range envs {
			wg.Add(1)
			go func(env config.Environment) {
				defer wg.Done()
				rootLog.Infof("starting keep-alive loop for %s", env)
				mgr.RunKeepAlive(ctx, env, func(ctx context.Context, env config.Environment, m *oauth.Manager) error {
					adapter := broker.NewETradeAdapter(cfg, m, env)
					_, err := adapter.ListAccounts(ctx)
					return err
				})
			}(env)
		}
		wg.Wait()
	},
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func init() {
	oauthCmd.AddCommand(oauthStartCmd, oauthStatusCmd, oauthKeepaliveCmd)
}
