package handlers

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/go-chi/chi/v5"

	"github.com/blockbus/gateway/internal/api/httputil"
	"github.com/blockbus/gateway/internal/bitcoin"
	"github.com/blockbus/gateway/internal/errs"
	"github.com/blockbus/gateway/internal/models"
)

// rawTransactionRequest is the body of the raw-broadcast endpoints.
type rawTransactionRequest struct {
	Raw string `json:"raw"`
}

// txHashResponse is the broadcast result.
type txHashResponse struct {
	TxHash models.TxHash `json:"txHash"`
}

// balanceResponse is the balance read result.
type balanceResponse struct {
	Balance models.Amount `json:"balance"`
}

// validateRawHex checks the opaque transaction hex. The content is not
// interpreted, only its encoding.
func validateRawHex(raw string) map[string][]string {
	fields := map[string][]string{}
	if raw == "" {
		fields["raw"] = append(fields["raw"], "must not be empty")
	} else if _, err := hex.DecodeString(raw); err != nil {
		fields["raw"] = append(fields["raw"], "must be a hex encoded transaction")
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// bitcoinAddress validates the {address} path parameter.
func bitcoinAddress(r *http.Request, params *chaincfg.Params) (models.BitcoinAddress, error) {
	address := chi.URLParam(r, "address")
	if _, err := btcutil.DecodeAddress(address, params); err != nil {
		return "", errs.Wrap(err, errs.BadRequest, "invalid bitcoin address")
	}
	return models.BitcoinAddress(address), nil
}

// GetUtxos handles GET /v1/bitcoin/{address}/utxos.
func GetUtxos(client bitcoin.Client, params *chaincfg.Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		address, err := bitcoinAddress(r, params)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		utxos, err := client.GetUtxos(r.Context(), address)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, utxos)
	}
}

// GetBitcoinBalance handles GET /v1/bitcoin/{address}/balance.
func GetBitcoinBalance(client bitcoin.Client, params *chaincfg.Params) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		address, err := bitcoinAddress(r, params)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		balance, err := client.GetBalance(r.Context(), address)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, balanceResponse{Balance: balance})
	}
}

// PostBitcoinTransaction handles POST /v1/bitcoin/transactions/raw.
func PostBitcoinTransaction(client bitcoin.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rawTransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Error(w, errs.Wrap(err, errs.BadRequest, "invalid request body").WithContext(errs.CtxJson))
			return
		}
		if fields := validateRawHex(req.Raw); fields != nil {
			httputil.Error(w, errs.NewValidation(fields))
			return
		}
		hash, err := client.SendRawTx(r.Context(), models.RawBitcoinTransaction(req.Raw))
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, txHashResponse{TxHash: hash})
	}
}
