// Package report renders reconciliation backlogs for offline catalog curation.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"invoice-reconciler/internal/core"
)

// UnmappedSheet is the worksheet name used by WriteUnmappedItems.
const UnmappedSheet = "Unmapped Items"

var unmappedHeadings = []string{
	"Vendor ID", "Description", "Normalized", "Occurrences", "Last Unit Cost",
	"Last Invoice ID", "Review Status", "First Seen", "Last Seen",
}

// WriteUnmappedItems writes items as an XLSX workbook to w, one row per backlog entry.
func WriteUnmappedItems(w io.Writer, items []core.UnmappedItem) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", UnmappedSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	for i, h := range unmappedHeadings {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(UnmappedSheet, cell, h); err != nil {
			return fmt.Errorf("failed to write heading %s: %w", h, err)
		}
	}

	for i, it := range items {
		row := i + 2
		values := []any{
			it.VendorID,
			it.RawDescription,
			it.NormalizedDescription,
			it.OccurrenceCount,
			it.LastUnitCost.InexactFloat64(),
			it.LastInvoiceID,
			it.ReviewStatus,
			it.FirstSeenAt.UTC().Format("2006-01-02 15:04:05"),
			it.LastSeenAt.UTC().Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(UnmappedSheet, cell, v); err != nil {
				return fmt.Errorf("failed to write row %d: %w", row, err)
			}
		}
	}

	if err := f.SetPanes(UnmappedSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze heading row: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
