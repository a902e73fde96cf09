package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blockbus/gateway/internal/api/httputil"
	"github.com/blockbus/gateway/internal/errs"
	"github.com/blockbus/gateway/internal/ethereum"
	"github.com/blockbus/gateway/internal/models"
)

// nonceResponse is the nonce read result.
type nonceResponse struct {
	Nonce uint64 `json:"nonce"`
}

// ethereumAddress validates the {address} path parameter: 40 hex chars, no
// 0x prefix.
func ethereumAddress(r *http.Request) (models.EthereumAddress, error) {
	address, err := models.ParseEthereumAddress(chi.URLParam(r, "address"))
	if err != nil {
		return "", errs.Wrap(err, errs.BadRequest, "invalid ethereum address")
	}
	return address, nil
}

// GetNonce handles GET /v1/ethereum/{address}/nonce.
func GetNonce(client ethereum.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		address, err := ethereumAddress(r)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		nonce, err := client.GetNonce(r.Context(), address)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, nonceResponse{Nonce: nonce})
	}
}

// GetEthereumBalance handles GET /v1/ethereum/{address}/balance. The currency
// query parameter picks native wei (default) or the STQ token balance.
func GetEthereumBalance(client ethereum.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		address, err := ethereumAddress(r)
		if err != nil {
			httputil.Error(w, err)
			return
		}

		currency := models.CurrencyETH
		if q := r.URL.Query().Get("currency"); q != "" {
			currency, err = models.ParseCurrency(q)
			if err != nil || currency == models.CurrencyBTC {
				httputil.Error(w, errs.New(errs.BadRequest, "currency must be eth or stq"))
				return
			}
		}

		var balance models.Amount
		if currency == models.CurrencySTQ {
			balance, err = client.GetStqBalance(r.Context(), address)
		} else {
			balance, err = client.GetEthBalance(r.Context(), address)
		}
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, balanceResponse{Balance: balance})
	}
}

// PostEthereumTransaction handles POST /v1/ethereum/transactions/raw.
func PostEthereumTransaction(client ethereum.Client) http.HandlerFunc {
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
		hash, err := client.SendRawTx(r.Context(), models.RawEthereumTransaction(req.Raw))
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, txHashResponse{TxHash: hash})
	}
}
