package export

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"smartqr/internal/models"

	"github.com/xuri/excelize/v2"
)

// Spreadsheet headers, as the operators read them.
var (
	InventoryHeaders = []string{"물품명", "코드", "수량", "분류", "등록일시"}
	InvoiceHeaders   = []string{"물품명", "코드", "청구 수량", "작성일시"}
)

const (
	inventorySheet = "Inventory"
	invoiceSheet   = "Invoice"
	stampLayout    = "20060102_150405"
)

// Exporter writes spreadsheet files under Dir (usually <workdir>/exports).
type Exporter struct {
	Dir string
	Now func() time.Time
}

func (e *Exporter) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Inventory writes one header row plus one row per item and returns the
// new file's path.
func (e *Exporter) Inventory(items []models.Item) (string, error) {
	rows := make([][]interface{}, 0, len(items))
	for _, i := range items {
		rows = append(rows, []interface{}{i.ItemName, i.ItemCode, i.TotalStock, i.Category, i.CreatedAt})
	}
	path, err := e.write("inventory", inventorySheet, InventoryHeaders, rows)
	if err != nil {
		return "", err
	}
	log.Printf("export: inventory (%d rows) -> %s", len(rows), path)
	return path, nil
}

// Invoice writes one row per requested line, each stamped with writtenAt.
func (e *Exporter) Invoice(lines []models.InvoiceLine, writtenAt string) (string, error) {
	rows := make([][]interface{}, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, []interface{}{l.ItemName, l.ItemCode, l.Qty, writtenAt})
	}
	path, err := e.write("invoice", invoiceSheet, InvoiceHeaders, rows)
	if err != nil {
		return "", err
	}
	log.Printf("export: invoice (%d rows) -> %s", len(rows), path)
	return path, nil
}

func (e *Exporter) write(prefix, sheet string, headers []string, rows [][]interface{}) (string, error) {
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := e.freshPath(prefix)

	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(sheet); err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return "", err
	}
	if index, err := f.GetSheetIndex(sheet); err == nil {
		f.SetActiveSheet(index)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return "", fmt.Errorf("create header style: %w", err)
	}

	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return "", err
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return "", err
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return "", err
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		return "", err
	}

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}

// freshPath never returns the path of an existing export.
func (e *Exporter) freshPath(prefix string) string {
	base := fmt.Sprintf("%s_%s", prefix, e.now().Format(stampLayout))
	path := filepath.Join(e.Dir, base+".xlsx")
	for n := 1; fileExists(path); n++ {
		path = filepath.Join(e.Dir, fmt.Sprintf("%s_%d.xlsx", base, n))
	}
	return path
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
