// Package exports renders indexed payments as CSV or JSON Lines with a
// checksum receivers can verify.
package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strconv"
	"time"

	"dineledger/indexer"
	"dineledger/native/stable"
)

var csvHeader = []string{"payment_id", "customer", "restaurant", "amount", "fee", "restaurant_amount", "settled_at"}

// PaymentsCSV builds a CSV export for the supplied rows and returns the
// serialised data alongside a SHA-256 checksum of the payload.
func PaymentsCSV(rows []indexer.PaymentRow) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(csvHeader); err != nil {
		return nil, "", err
	}
	for _, row := range rows {
		record := []string{
			strconv.FormatUint(row.ID, 10),
			row.Customer,
			row.Restaurant,
			human(row.Amount),
			human(row.Fee),
			human(row.RestaurantAmount),
			row.SettledAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	return checksummed(buffer.Bytes())
}

// PaymentsJSONL builds a JSON Lines export for the supplied rows.
func PaymentsJSONL(rows []indexer.PaymentRow) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, row := range rows {
		payload := map[string]interface{}{
			"payment_id":        row.ID,
			"customer":          row.Customer,
			"restaurant":        row.Restaurant,
			"amount":            human(row.Amount),
			"fee":               human(row.Fee),
			"restaurant_amount": human(row.RestaurantAmount),
			"settled_at":        row.SettledAt.UTC().Format(time.RFC3339),
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	return checksummed(buffer.Bytes())
}

func checksummed(data []byte) ([]byte, string, error) {
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

func human(units string) string {
	v, ok := new(big.Int).SetString(units, 10)
	if !ok {
		return units
	}
	return stable.FormatAmount(v)
}
