package ethereum

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/blockbus/gateway/internal/errs"
	"github.com/blockbus/gateway/internal/models"
)

// Strip0x removes a leading 0x/0X prefix if present.
func Strip0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// HexToBytes decodes a hex string, with or without the 0x prefix.
func HexToBytes(s string) ([]byte, error) {
	b, err := hex.DecodeString(Strip0x(s))
	if err != nil {
		return nil, errs.Wrap(err, errs.Internal, fmt.Sprintf("invalid hex %q", s)).WithContext(errs.CtxHex)
	}
	return b, nil
}

// BytesToHex encodes bytes as lowercase hex without a prefix.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// ToPadded32 left-pads bytes to a 32-byte word, the ABI argument encoding.
func ToPadded32(b []byte) []byte {
	return common.LeftPadBytes(b, 32)
}

// parseHexUint64 decodes a 0x-prefixed quantity into a uint64.
func parseHexUint64(s string) (uint64, error) {
	v, err := hexutil.DecodeUint64(s)
	if err != nil {
		return 0, errs.Wrap(err, errs.Internal, fmt.Sprintf("invalid hex quantity %q", s)).WithContext(errs.CtxHex)
	}
	return v, nil
}

// parseHexAmount decodes a 0x-prefixed quantity (canonical form, no leading
// zeros) into an Amount.
func parseHexAmount(s string) (models.Amount, error) {
	b, err := hexutil.DecodeBig(s)
	if err != nil {
		return models.Amount{}, errs.Wrap(err, errs.Internal, fmt.Sprintf("invalid hex quantity %q", s)).WithContext(errs.CtxHex)
	}
	a, err := models.AmountFromBig(b)
	if err != nil {
		return models.Amount{}, err
	}
	return a, nil
}

// parseHexDataAmount decodes zero-padded hex data (such as a log's data word)
// into an Amount.
func parseHexDataAmount(s string) (models.Amount, error) {
	raw, err := HexToBytes(s)
	if err != nil {
		return models.Amount{}, err
	}
	a, err := models.AmountFromBig(new(big.Int).SetBytes(raw))
	if err != nil {
		return models.Amount{}, err
	}
	return a, nil
}

// lastAddressChars extracts the 40-hex-char address from the tail of a
// 32-byte topic word.
func lastAddressChars(topic string) string {
	t := strings.ToLower(Strip0x(topic))
	if len(t) <= 40 {
		return t
	}
	return t[len(t)-40:]
}
