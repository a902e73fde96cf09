package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/blockbus/gateway/internal/config"
	"github.com/blockbus/gateway/internal/models"
	"github.com/blockbus/gateway/internal/poller"
	"github.com/blockbus/gateway/internal/rabbit"
)

func parseCount(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

// parsePublishArgs handles the `[hash] <n>` argument form of the publish
// commands.
func parsePublishArgs(args []string) (hash string, n uint64, err error) {
	countArg := args[0]
	if len(args) == 2 {
		hash = args[0]
		countArg = args[1]
	}
	n, err = parseCount(countArg)
	return hash, n, err
}

// printStream renders every record of a transaction stream.
func printStream(stream <-chan models.TransactionEvent) error {
	for ev := range stream {
		if ev.Err != nil {
			return ev.Err
		}
		if err := printJSON(ev.Tx); err != nil {
			return err
		}
	}
	return nil
}

// connectPublisher dials the broker for the one-shot publish commands.
func connectPublisher(ctx context.Context, cfg *config.Config) (*rabbit.TransactionPublisher, *rabbit.Session, error) {
	session := rabbit.NewSession(cfg.Rabbit)
	if err := session.Connect(ctx); err != nil {
		return nil, nil, err
	}
	return rabbit.NewTransactionPublisher(session), session, nil
}

func bitcoinCommands() []*cobra.Command {
	getTransaction := &cobra.Command{
		Use:   "get_btc_transaction <hash>",
		Short: "Fetch and normalize one bitcoin transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			btcClient, _ := buildClients(cfg)
			tx, err := btcClient.GetTransaction(cmd.Context(), args[0], 0)
			if err != nil {
				return err
			}
			return printJSON(tx)
		},
	}

	getBlock := &cobra.Command{
		Use:   "get_btc_block <hash>",
		Short: "Fetch one bitcoin block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			btcClient, _ := buildClients(cfg)
			block, err := btcClient.GetBlockByHash(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(block)
		},
	}

	getLastBlocks := &cobra.Command{
		Use:   "get_btc_last_blocks <n>",
		Short: "Walk the last n bitcoin blocks from the tip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			n, err := parseCount(args[0])
			if err != nil {
				return err
			}
			btcClient, _ := buildClients(cfg)
			for r := range btcClient.LastBlocks(cmd.Context(), "", n) {
				if r.Err != nil {
					return r.Err
				}
				if err := printJSON(r.Block); err != nil {
					return err
				}
			}
			return nil
		},
	}

	getLastTransactions := &cobra.Command{
		Use:   "get_btc_last_transactions <n>",
		Short: "Normalize the transactions of the last n bitcoin blocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			n, err := parseCount(args[0])
			if err != nil {
				return err
			}
			btcClient, _ := buildClients(cfg)
			return printStream(btcClient.LastTransactions(cmd.Context(), "", n))
		},
	}

	publish := &cobra.Command{
		Use:   "publish_btc_transactions [hash] <n>",
		Short: "Publish the transactions of the last n bitcoin blocks",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			hash, n, err := parsePublishArgs(args)
			if err != nil {
				return err
			}
			btcClient, _ := buildClients(cfg)
			publisher, session, err := connectPublisher(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer session.Close()
			p := poller.NewBitcoin(cfg.Poller, btcClient, publisher)
			return p.PublishTransactions(cmd.Context(), hash, n)
		},
	}

	return []*cobra.Command{getTransaction, getBlock, getLastBlocks, getLastTransactions, publish}
}

func ethereumCommands() []*cobra.Command {
	getTransaction := &cobra.Command{
		Use:   "get_eth_transaction <hash>",
		Short: "Fetch and normalize one ethereum transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			_, ethClient := buildClients(cfg)
			tx, err := ethClient.GetEthTransaction(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(tx)
		},
	}

	getLastTransactions := &cobra.Command{
		Use:   "get_eth_last_transactions <n>",
		Short: "Normalize the native transactions of the last n ethereum blocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			n, err := parseCount(args[0])
			if err != nil {
				return err
			}
			_, ethClient := buildClients(cfg)
			return printStream(ethClient.LastEthTransactions(cmd.Context(), "", n))
		},
	}

	publish := &cobra.Command{
		Use:   "publish_eth_transactions [hash] <n>",
		Short: "Publish the native transactions of the last n ethereum blocks",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			hash, n, err := parsePublishArgs(args)
			if err != nil {
				return err
			}
			_, ethClient := buildClients(cfg)
			publisher, session, err := connectPublisher(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer session.Close()
			p := poller.NewEthereum(cfg.Poller, ethClient, publisher)
			return p.PublishTransactions(cmd.Context(), hash, n)
		},
	}

	return []*cobra.Command{getTransaction, getLastTransactions, publish}
}

func storiqaCommands() []*cobra.Command {
	getTransactions := &cobra.Command{
		Use:   "get_stq_transactions <hash>",
		Short: "Normalize the STQ operations inside one ethereum transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			_, ethClient := buildClients(cfg)
			return printStream(ethClient.GetStqTransactions(cmd.Context(), args[0]))
		},
	}

	getLastTransactions := &cobra.Command{
		Use:   "get_stq_last_transactions <n>",
		Short: "Normalize the STQ operations of the last n ethereum blocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			n, err := parseCount(args[0])
			if err != nil {
				return err
			}
			_, ethClient := buildClients(cfg)
			return printStream(ethClient.LastStqTransactions(cmd.Context(), "", n))
		},
	}

	publish := &cobra.Command{
		Use:   "publish_stq_transactions [hash] <n>",
		Short: "Publish the STQ operations of the last n ethereum blocks",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			hash, n, err := parsePublishArgs(args)
			if err != nil {
				return err
			}
			_, ethClient := buildClients(cfg)
			publisher, session, err := connectPublisher(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer session.Close()
			p := poller.NewStoriqa(cfg.Poller, ethClient, publisher)
			return p.PublishTransactions(cmd.Context(), hash, n)
		},
	}

	return []*cobra.Command{getTransactions, getLastTransactions, publish}
}
