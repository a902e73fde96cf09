// Package api is the synchronous HTTP facade: UTXO and nonce reads plus raw
// transaction forwarding. It shares the chain clients with the pollers but
// none of their scheduling.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/go-chi/chi/v5"

	"github.com/blockbus/gateway/internal/api/handlers"
	"github.com/blockbus/gateway/internal/api/httputil"
	"github.com/blockbus/gateway/internal/bitcoin"
	"github.com/blockbus/gateway/internal/config"
	"github.com/blockbus/gateway/internal/ethereum"
)

// Version is set at build time via ldflags.
var Version = "dev"

// NewRouter creates the chi router with all facade routes.
func NewRouter(cfg *config.Config, btcClient bitcoin.Client, ethClient ethereum.Client) chi.Router {
	netParams := &chaincfg.TestNet3Params
	if cfg.Mode.IsProduction() {
		netParams = &chaincfg.MainNetParams
	}

	r := chi.NewRouter()
	r.NotFound(httputil.NotFoundHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthcheck", handlers.Healthcheck(Version))

		r.Route("/bitcoin", func(r chi.Router) {
			r.Get("/{address}/utxos", handlers.GetUtxos(btcClient, netParams))
			r.Get("/{address}/balance", handlers.GetBitcoinBalance(btcClient, netParams))
			r.Post("/transactions/raw", handlers.PostBitcoinTransaction(btcClient))
		})

		r.Route("/ethereum", func(r chi.Router) {
			r.Get("/{address}/nonce", handlers.GetNonce(ethClient))
			r.Get("/{address}/balance", handlers.GetEthereumBalance(ethClient))
			r.Post("/transactions/raw", handlers.PostEthereumTransaction(ethClient))
		})
	})

	return r
}

// Serve runs the HTTP server until ctx is cancelled, then drains connections.
func Serve(ctx context.Context, cfg *config.Config, handler http.Handler) error {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http facade listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
