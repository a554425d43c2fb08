package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	settlement "marketplace-core/internal/settlement/domain"
)

// BuildSettlementPDF renders a minimal PDF for a settlement batch. Amounts
// are minor units.
func BuildSettlementPDF(s *settlement.Settlement, items []settlement.Item) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Settlement Batch")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Recipient: %s (%s)", s.RecipientID, s.RecipientType))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s .. %s", s.PeriodStart.Format("2006-01-02"), s.PeriodEnd.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", s.Status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", s.CreatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	if !s.ConfirmedAt.IsZero() {
		pdf.Cell(0, 6, fmt.Sprintf("Confirmed: %s", s.ConfirmedAt.Format(time.RFC3339)))
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Total Gross (%s): %d", s.Currency, s.TotalGross))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Commission (%s): %d", s.Currency, s.TotalCommission))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Net (%s): %d", s.Currency, s.TotalNet))
	pdf.Ln(8)

	// Items table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(50, 6, "Order Item", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Kind", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Gross", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Commission", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Net", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, item := range items {
		pdf.CellFormat(50, 6, item.OrderItemID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, string(item.Kind), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%d", item.GrossAmount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%d", item.CommissionAmount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%d", item.NetAmount), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	err := pdf.Output(&buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSettlementXLSX renders a minimal XLSX for a settlement batch.
func BuildSettlementXLSX(s *settlement.Settlement, items []settlement.Item) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	itemsSheet := "items"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(itemsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Settlement Batch")
	_ = f.SetCellValue(summarySheet, "A3", "Recipient")
	_ = f.SetCellValue(summarySheet, "B3", s.RecipientID)
	_ = f.SetCellValue(summarySheet, "A4", "Recipient Type")
	_ = f.SetCellValue(summarySheet, "B4", string(s.RecipientType))
	_ = f.SetCellValue(summarySheet, "A5", "Period Start")
	_ = f.SetCellValue(summarySheet, "B5", s.PeriodStart.Format("2006-01-02"))
	_ = f.SetCellValue(summarySheet, "A6", "Period End")
	_ = f.SetCellValue(summarySheet, "B6", s.PeriodEnd.Format("2006-01-02"))
	_ = f.SetCellValue(summarySheet, "A7", "Status")
	_ = f.SetCellValue(summarySheet, "B7", string(s.Status))
	_ = f.SetCellValue(summarySheet, "A8", "Total Gross")
	_ = f.SetCellValue(summarySheet, "B8", s.TotalGross)
	_ = f.SetCellValue(summarySheet, "A9", "Total Commission")
	_ = f.SetCellValue(summarySheet, "B9", s.TotalCommission)
	_ = f.SetCellValue(summarySheet, "A10", "Total Net")
	_ = f.SetCellValue(summarySheet, "B10", s.TotalNet)
	_ = f.SetCellValue(summarySheet, "A11", "Currency")
	_ = f.SetCellValue(summarySheet, "B11", s.Currency)

	_ = f.SetCellValue(itemsSheet, "A1", "Order Item")
	_ = f.SetCellValue(itemsSheet, "B1", "Kind")
	_ = f.SetCellValue(itemsSheet, "C1", "Gross")
	_ = f.SetCellValue(itemsSheet, "D1", "Commission")
	_ = f.SetCellValue(itemsSheet, "E1", "Net")
	_ = f.SetCellValue(itemsSheet, "F1", "Order Paid At")
	for i, item := range items {
		row := i + 2
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("A%d", row), item.OrderItemID)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("B%d", row), string(item.Kind))
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("C%d", row), item.GrossAmount)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("D%d", row), item.CommissionAmount)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("E%d", row), item.NetAmount)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("F%d", row), item.OrderPaidAt.Format(time.RFC3339))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
