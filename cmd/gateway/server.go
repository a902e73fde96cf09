package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blockbus/gateway/internal/api"
	"github.com/blockbus/gateway/internal/poller"
	"github.com/blockbus/gateway/internal/rabbit"
)

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP facade and the chain pollers",
		RunE:  runServer,
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	btcClient, ethClient := buildClients(cfg)

	if cfg.Poller.Enabled {
		session := rabbit.NewSession(cfg.Rabbit)
		defer session.Close()
		if err := session.Connect(ctx); err != nil {
			return err
		}
		publisher := rabbit.NewTransactionPublisher(session)

		poller.NewBitcoin(cfg.Poller, btcClient, publisher).Start(ctx)
		poller.NewEthereum(cfg.Poller, ethClient, publisher).Start(ctx)
		poller.NewStoriqa(cfg.Poller, ethClient, publisher).Start(ctx)
	} else {
		slog.Info("pollers disabled by configuration")
	}

	router := api.NewRouter(cfg, btcClient, ethClient)
	return api.Serve(ctx, cfg, router)
}
