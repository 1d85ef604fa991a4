package indexer

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"dineledger/native/stable"
)

const exportPageSize = 500

type paymentParquetRow struct {
	PaymentID        int64  `parquet:"name=payment_id, type=INT64"`
	Customer         string `parquet:"name=customer, type=BYTE_ARRAY, convertedtype=UTF8"`
	Restaurant       string `parquet:"name=restaurant, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount           string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	Fee              string `parquet:"name=fee, type=BYTE_ARRAY, convertedtype=UTF8"`
	RestaurantAmount string `parquet:"name=restaurant_amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	SettledAt        string `parquet:"name=settled_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportPaymentsParquet writes every indexed payment matching filter to path
// and returns the number of rows written. Amounts are rendered as decimal
// token values.
func (ix *Indexer) ExportPaymentsParquet(ctx context.Context, path string, filter PaymentFilter) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(paymentParquetRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	page := filter
	page.Limit = exportPageSize
	page.Offset = 0
	for {
		rows, err := ix.ListPayments(ctx, page)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return written, err
		}
		for _, row := range rows {
			pr := &paymentParquetRow{
				PaymentID:        int64(row.ID),
				Customer:         row.Customer,
				Restaurant:       row.Restaurant,
				Amount:           decimalUnits(row.Amount),
				Fee:              decimalUnits(row.Fee),
				RestaurantAmount: decimalUnits(row.RestaurantAmount),
				SettledAt:        row.SettledAt.UTC().Format(time.RFC3339),
			}
			if err := pw.Write(pr); err != nil {
				pw.WriteStop()
				file.Close()
				return written, fmt.Errorf("indexer: parquet write: %w", err)
			}
			written++
		}
		if len(rows) < exportPageSize {
			break
		}
		page.Offset += exportPageSize
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("indexer: close parquet file: %w", err)
	}
	return written, nil
}

func decimalUnits(raw string) string {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return raw
	}
	return stable.FormatAmount(v)
}
