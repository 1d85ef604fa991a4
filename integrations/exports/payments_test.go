package exports

import (
	"strings"
	"testing"
	"time"

	"dineledger/indexer"
)

func sampleRows() []indexer.PaymentRow {
	return []indexer.PaymentRow{{
		ID:               1,
		Customer:         "0x3000000000000000000000000000000000000003",
		Restaurant:       "0x2000000000000000000000000000000000000002",
		Amount:           "100000000",
		Fee:              "2500000",
		RestaurantAmount: "97500000",
		SettledAt:        time.Unix(1_700_000_000, 0),
	}}
}

func TestPaymentsCSV(t *testing.T) {
	data, checksum, err := PaymentsCSV(sampleRows())
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if len(data) == 0 || len(checksum) != 64 {
		t.Fatalf("expected data and checksum")
	}
	output := string(data)
	if !strings.HasPrefix(output, "payment_id,customer,restaurant,amount,fee,restaurant_amount,settled_at\n") {
		t.Fatalf("missing header: %s", output)
	}
	if !strings.Contains(output, ",100.00,2.50,97.50,2023-11-14T22:13:20Z") {
		t.Fatalf("unexpected row: %s", output)
	}
}

func TestPaymentsJSONL(t *testing.T) {
	data, checksum, err := PaymentsJSONL(sampleRows())
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if checksum == "" {
		t.Fatalf("expected checksum")
	}
	output := string(data)
	if !strings.Contains(output, `"payment_id":1`) || !strings.Contains(output, `"restaurant_amount":"97.50"`) {
		t.Fatalf("unexpected payload: %s", output)
	}
	_, again, _ := PaymentsJSONL(sampleRows())
	if again != checksum {
		t.Fatalf("checksum not deterministic")
	}
}
