package blockchain

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/shopspring/decimal"
)

// SPL token account layout (little-endian):
//   [0,32)  mint
//   [32,64) owner
//   [64,72) amount (u64)
const (
	amountOffset       = 64
	tokenAccountMinLen = 72
)

// AccountInfo is one entry of a getMultipleAccounts response
type AccountInfo struct {
	Data       json.RawMessage `json:"data"`
	Owner      string          `json:"owner"`
	Lamports   uint64          `json:"lamports"`
	Executable bool            `json:"executable"`
}

// Blob returns the base64 payload of the account.
// With base64 encoding the endpoint sends ["<payload>", "base64"].
func (a *AccountInfo) Blob() (string, error) {
	var pair []string
	if err := json.Unmarshal(a.Data, &pair); err == nil {
		if len(pair) == 0 {
			return "", fmt.Errorf("empty data array")
		}
		if len(pair) > 1 && pair[1] != "base64" {
			return "", fmt.Errorf("unexpected encoding %q", pair[1])
		}
		return pair[0], nil
	}

	var raw string
	if err := json.Unmarshal(a.Data, &raw); err != nil {
		return "", fmt.Errorf("unrecognized data field: %w", err)
	}
	return raw, nil
}

// ParseTokenAmount reads the raw amount field of a token account
func ParseTokenAmount(data []byte) (uint64, error) {
	if len(data) < tokenAccountMinLen {
		return 0, &DecodeError{Reason: "payload shorter than token account header", Length: len(data)}
	}
	return binary.LittleEndian.Uint64(data[amountOffset:tokenAccountMinLen]), nil
}

// DecodeBalance turns a base64 token account blob into a whole-token balance.
// It never fails: unreadable input decodes to zero and is logged.
func DecodeBalance(blob string, decimals uint8) decimal.Decimal {
	return decodeBalance(slog.Default(), blob, decimals)
}

func decodeBalance(logger *slog.Logger, blob string, decimals uint8) decimal.Decimal {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		logger.Warn("Token account payload is not valid base64", "error", err)
		return decimal.Zero
	}

	amount, err := ParseTokenAmount(data)
	if err != nil {
		logger.Warn("Token account payload could not be decoded", "error", err)
		return decimal.Zero
	}

	return HumanBalance(amount, decimals)
}

// HumanBalance scales a raw token amount by the token's decimal exponent
func HumanBalance(raw uint64, decimals uint8) decimal.Decimal {
	if raw == 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(decimals))
}
