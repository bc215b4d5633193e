// Command easyorb is the operator CLI: authorize the broker OAuth session,
// run the ORB engine against the simulator or the live E*TRADE adapter, and
// check account balance. Grounded on the cobra command layout used across
// the example pack's CLI tools: package-level flag vars, package-level
// *cobra.Command vars, and a main() that wires flags before Execute().
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steinwealth/easyorb/internal/config"
	"github.com/steinwealth/easyorb/internal/logger"
)

var (
	cfg     *config.Config
	rootLog *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "easyorb",
	Short: "Opening-range-breakout trading engine",
}

func requireNoError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}
}

// parseEnv maps a CLI argument to a broker environment. "production" is
// accepted as a synonym for "prod".
func parseEnv(arg string) config.Environment {
	switch arg {
	case "sandbox":
		return config.Sandbox
	case "prod", "production":
		return config.Production
	default:
		fmt.Fprintf(os.Stderr, "error: expected \"sandbox\" or \"prod\", got %q\n", arg)
		os.Exit(1)
		return ""
	}
}

func main() {
	cfg = config.Load()
	logger.SetLevel(os.Getenv("LOG_LEVEL"))
	rootLog = logger.For("cli")

	rootCmd.AddCommand(oauthCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(balanceCmd)

	requireNoError(rootCmd.Execute())
}
