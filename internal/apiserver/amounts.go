package apiserver

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

type amountView struct {
	Amount   string `json:"amount"`
	UIAmount string `json:"ui_amount"`
}

func newAmountView(amount uint64, decimals uint8) amountView {
	return amountView{
		Amount:   strconv.FormatUint(amount, 10),
		UIAmount: formatUIAmount(amount, decimals),
	}
}

func formatUIAmount(amount uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals)).String()
}

// parseAmount reads either a raw base-unit "amount" or a decimal
// "ui_amount" from a JSON body.
func parseAmount(body []byte, decimals uint8) (uint64, error) {
	if raw := gjson.GetBytes(body, "amount"); raw.Exists() {
		return parseRawAmount(raw)
	}
	if ui := gjson.GetBytes(body, "ui_amount"); ui.Exists() {
		return parseUIAmount(ui.String(), decimals)
	}
	return 0, fmt.Errorf("amount or ui_amount is required")
}

func parseRawAmount(raw gjson.Result) (uint64, error) {
	if raw.Type != gjson.Number && raw.Type != gjson.String {
		return 0, fmt.Errorf("invalid amount: %s", raw.Raw)
	}
	value, err := strconv.ParseUint(strings.TrimSpace(raw.String()), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount: %w", err)
	}
	return value, nil
}

func parseUIAmount(raw string, decimals uint8) (uint64, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid ui_amount: %w", err)
	}
	if value.IsNegative() {
		return 0, fmt.Errorf("invalid ui_amount: must not be negative")
	}
	scaled := value.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("invalid ui_amount: more than %d decimal places", decimals)
	}
	units := scaled.BigInt()
	if !units.IsUint64() {
		return 0, fmt.Errorf("invalid ui_amount: out of range")
	}
	return units.Uint64(), nil
}

func parsePubkeyField(body []byte, key string, required bool) (solana.PublicKey, error) {
	raw := strings.TrimSpace(gjson.GetBytes(body, key).String())
	if raw == "" {
		if required {
			return solana.PublicKey{}, fmt.Errorf("%s is required", key)
		}
		return solana.PublicKey{}, nil
	}
	key58, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return key58, nil
}

func validJSONBody(body []byte) error {
	if len(body) == 0 {
		return fmt.Errorf("request body is required")
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return fmt.Errorf("invalid request body: expected a JSON object")
	}
	return nil
}
