package journal

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// ExportPageSize bounds how many rows are read from sqlite per batch while
// exporting.
const ExportPageSize = 500

// TradeRow is the parquet layout of an exported trade. Amounts stay decimal
// strings so no precision is lost.
type TradeRow struct {
	ID            string `parquet:"name=id, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Pair          string `parquet:"name=pair, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Direction     string `parquet:"name=direction, type=UTF8, encoding=PLAIN_DICTIONARY"`
	InputResource string `parquet:"name=input_resource, type=UTF8, encoding=PLAIN_DICTIONARY"`
	InputAmount   string `parquet:"name=input_amount, type=UTF8, encoding=PLAIN_DICTIONARY"`
	OutResource   string `parquet:"name=output_resource, type=UTF8, encoding=PLAIN_DICTIONARY"`
	OutAmount     string `parquet:"name=output_amount, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Fee           string `parquet:"name=fee, type=UTF8, encoding=PLAIN_DICTIONARY"`
	ShortageFrom  string `parquet:"name=shortage_before, type=UTF8, encoding=PLAIN_DICTIONARY"`
	ShortageTo    string `parquet:"name=shortage_after, type=UTF8, encoding=PLAIN_DICTIONARY"`
	P0            string `parquet:"name=p0, type=UTF8, encoding=PLAIN_DICTIONARY"`
	TargetRatio   string `parquet:"name=target_ratio, type=UTF8, encoding=PLAIN_DICTIONARY"`
	LastOutSpot   string `parquet:"name=last_out_spot, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Legs          int32  `parquet:"name=legs, type=INT32"`
	ExecutedAt    string `parquet:"name=executed_at, type=UTF8, encoding=PLAIN_DICTIONARY"`
}

func tradeRowFrom(t Trade) *TradeRow {
	return &TradeRow{
		ID:            t.ID,
		Pair:          t.Pair,
		Direction:     t.Direction,
		InputResource: t.InputResource,
		InputAmount:   t.InputAmount,
		OutResource:   t.OutputResource,
		OutAmount:     t.OutputAmount,
		Fee:           t.Fee,
		ShortageFrom:  t.ShortageBefore,
		ShortageTo:    t.ShortageAfter,
		P0:            t.P0,
		TargetRatio:   t.TargetRatio,
		LastOutSpot:   t.LastOutSpot,
		Legs:          int32(t.Legs),
		ExecutedAt:    t.ExecutedAt.UTC().Format(time.RFC3339),
	}
}

// ExportTrades writes every journalled trade of pair to w as a snappy
// compressed parquet file, oldest first, and returns the row count.
func (j *Journal) ExportTrades(ctx context.Context, pair string, w io.Writer) (int, error) {
	if j == nil || j.db == nil {
		return 0, fmt.Errorf("journal: not open")
	}
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(w), new(TradeRow), 1)
	if err != nil {
		return 0, fmt.Errorf("journal: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	var after int64
	for {
		page, last, err := j.tradesAfter(ctx, pair, after, ExportPageSize)
		if err != nil {
			_ = pw.WriteStop()
			return written, err
		}
		for _, t := range page {
			if err := pw.Write(tradeRowFrom(t)); err != nil {
				_ = pw.WriteStop()
				return written, fmt.Errorf("journal: parquet write: %w", err)
			}
			written++
		}
		if len(page) < ExportPageSize {
			break
		}
		after = last
	}
	if err := pw.WriteStop(); err != nil {
		return written, fmt.Errorf("journal: parquet flush: %w", err)
	}
	return written, nil
}
