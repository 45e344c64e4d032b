package reports

import (
	"fmt"
	"net/http"

	"github.com/xuri/excelize/v2"
)

type ExcelExporter interface {
	GetCellValues() []interface{}
}

var invoiceRegisterHeadings = []string{
	"Invoice Number", "Invoice Date", "Due Date", "Customer", "Job",
	"Status", "Total", "Deposit", "Remaining",
}

// ExportInvoiceRegisterExcel streams the invoice register as an xlsx download.
func ExportInvoiceRegisterExcel(w http.ResponseWriter, r *http.Request) {
	data, err := GetInvoiceRegisterReport(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	exporters := make([]ExcelExporter, 0, len(data))
	for _, row := range data {
		exporters = append(exporters, row)
	}

	f, err := buildExcel(exporters, invoiceRegisterHeadings...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=invoices.xlsx")
	if err := f.Write(w); err != nil {
		http.Error(w, "Failed to write file", http.StatusInternalServerError)
	}
}

func buildExcel(data []ExcelExporter, headings ...string) (*excelize.File, error) {
	f := excelize.NewFile()
	sheetName := "Sheet1"
	if _, err := f.NewSheet(sheetName); err != nil {
		return nil, err
	}

	col := 'A'
	for _, h := range headings {
		f.SetCellValue(sheetName, string(col)+"1", h)
		col++
	}

	rowNo := 2
	for _, d := range data {
		col := 'A'
		for _, value := range d.GetCellValues() {
			f.SetCellValue(sheetName, string(col)+fmt.Sprint(rowNo), value)
			col++
		}
		rowNo++
	}
	return f, nil
}
