package shift

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/saborhub/ordercore/internal/models"
)

// reportRow is one reconciled-shift line of the closeout export,
// adapted from the donor's recon.ReportRow/parquetRow pair — trimmed to
// the cash-ledger fields this domain reconciles instead of invoice/mint
// fields.
type reportRow struct {
	ShiftID      string  `parquet:"name=shift_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ServerID     string  `parquet:"name=server_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	OpenedAt     string  `parquet:"name=opened_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	ClosedAt     string  `parquet:"name=closed_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	OpeningCash  float64 `parquet:"name=opening_cash, type=DOUBLE"`
	CashSales    float64 `parquet:"name=cash_sales, type=DOUBLE"`
	CardSales    float64 `parquet:"name=card_sales, type=DOUBLE"`
	TipSales     float64 `parquet:"name=tip_sales, type=DOUBLE"`
	ClosingCount float64 `parquet:"name=closing_cash_count, type=DOUBLE"`
	ExpectedCash float64 `parquet:"name=expected_cash, type=DOUBLE"`
	Variance     float64 `parquet:"name=cash_variance, type=DOUBLE"`
	IsOver       bool    `parquet:"name=is_over, type=BOOLEAN"`
	BreakMinutes int32   `parquet:"name=break_minutes, type=INT32"`
}

func decimalOr(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func decimalPtr(v *decimal.Decimal) *float64 {
	if v == nil {
		return nil
	}
	f := v.InexactFloat64()
	return &f
}

// ExportShift writes a reconciled shift's closeout summary under
// outputDir as a Parquet file named by shift ID.
func ExportShift(outputDir string, sh *models.Shift) (string, error) {
	isOver := false
	if sh.IsOver != nil {
		isOver = *sh.IsOver
	}
	return ExportReconciledShift(outputDir, sh.ID.String(), sh.ServerID.String(), sh.OpenedAt, sh.ClosedAt,
		sh.OpeningBalance.InexactFloat64(), sh.CashSales.InexactFloat64(), sh.CardSales.InexactFloat64(), sh.TipSales.InexactFloat64(),
		decimalPtr(sh.ClosingCashCount), decimalPtr(sh.ExpectedCash), decimalPtr(sh.CashVariance), isOver, sh.TotalBreakTimeMinutes)
}

// ExportReconciledShift writes one reconciled shift as a Parquet row
// under outputDir, named by shift ID, matching the donor's
// per-branch/currency export layout but scoped to a single shift.
func ExportReconciledShift(outputDir string, shiftID, serverID string, openedAt time.Time, closedAt *time.Time,
	openingCash, cashSales, cardSales, tipSales float64,
	closingCount, expectedCash, variance *float64, isOver bool, breakMinutes int) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("shift: ensure export dir: %w", err)
	}
	path := filepath.Join(outputDir, shiftID+".parquet")
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("shift: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(reportRow), 1)
	if err != nil {
		file.Close()
		return "", fmt.Errorf("shift: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	closedAtStr := ""
	if closedAt != nil {
		closedAtStr = closedAt.Format(time.RFC3339)
	}
	row := &reportRow{
		ShiftID: shiftID, ServerID: serverID,
		OpenedAt: openedAt.Format(time.RFC3339), ClosedAt: closedAtStr,
		OpeningCash: openingCash, CashSales: cashSales, CardSales: cardSales, TipSales: tipSales,
		ClosingCount: decimalOr(closingCount), ExpectedCash: decimalOr(expectedCash), Variance: decimalOr(variance),
		IsOver: isOver, BreakMinutes: int32(breakMinutes),
	}
	if err := pw.Write(row); err != nil {
		pw.WriteStop()
		file.Close()
		return "", fmt.Errorf("shift: parquet write: %w", err)
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return "", fmt.Errorf("shift: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("shift: close parquet file: %w", err)
	}
	return path, nil
}
