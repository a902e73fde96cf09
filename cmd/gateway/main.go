// Command gateway runs the blockchain-to-message-bus gateway: three chain
// pollers feeding a broker, a small synchronous HTTP facade, and one-shot
// inspection subcommands for each chain.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blockbus/gateway/internal/bitcoin"
	"github.com/blockbus/gateway/internal/config"
	"github.com/blockbus/gateway/internal/ethereum"
	"github.com/blockbus/gateway/internal/httprpc"
	"github.com/blockbus/gateway/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gateway",
		Short:         "Blockchain to message bus gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newConfigCmd(),
		newServerCmd(),
	)
	root.AddCommand(bitcoinCommands()...)
	root.AddCommand(ethereumCommands()...)
	root.AddCommand(storiqaCommands()...)

	return root
}

// setup loads configuration and initializes logging.
func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logging.Setup(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildClients constructs the shared HTTP adapter and both chain clients.
func buildClients(cfg *config.Config) (*bitcoin.HTTPClientImpl, *ethereum.HTTPClientImpl) {
	httpClient := httprpc.New(cfg.Client.DNSThreads, cfg.Client.RPS)
	btcClient := bitcoin.NewClient(
		httpClient,
		cfg.Mode,
		cfg.Client.BitcoinRPCURL,
		cfg.Client.BitcoinRPCUser,
		cfg.Client.BitcoinRPCPassword,
	)
	ethClient := ethereum.NewClient(httpClient, cfg.Mode, cfg.Client)
	return btcClient, ethClient
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			redacted := *cfg
			redacted.Client.BitcoinRPCPassword = "<redacted>"
			redacted.Client.InfuraKey = "<redacted>"
			return printJSON(redacted)
		},
	}
}

// printJSON renders a value for the one-shot inspection commands.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
