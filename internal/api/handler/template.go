package handler

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

const (
	templateSheet     = "Products"
	instructionsSheet = "Instructions"
	xlsxMIME          = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// ImportNoteHeader tells spreadsheet users how to turn the template into an upload.
	ImportNoteHeader = "X-Import-Note"
	uploadNote       = "Uploads accept .csv, .tsv or .txt files only. Fill in the Products sheet, then save it as CSV before uploading."
)

var (
	templateHeader = []string{"sku", "name", "description"}
	templateRows   = [][]string{
		{"SKU-0001", "Example product", "Optional free-text description"},
		{"SKU-0002", "Another product", ""},
	}
)

// Template handles GET /api/v1/products/import/template?format=csv|xlsx|json.
// The xlsx variant is a filling aid only: uploads must be delimited text.
func (h *ProductHandler) Template(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")

	switch format {
	case "csv":
		body, err := csvTemplate()
		if err != nil {
			respondError(c, err, "Failed to build template")
			return
		}
		c.Header("Content-Disposition", `attachment; filename="products_template.csv"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", body)
	case "xlsx":
		body, err := xlsxTemplate()
		if err != nil {
			respondError(c, err, "Failed to build template")
			return
		}
		c.Header("Content-Disposition", `attachment; filename="products_template.xlsx"`)
		c.Header(ImportNoteHeader, uploadNote)
		c.Data(http.StatusOK, xlsxMIME, body)
	case "json":
		rows := make([]map[string]string, 0, len(templateRows))
		for _, row := range templateRows {
			rec := make(map[string]string, len(templateHeader))
			for i, col := range templateHeader {
				rec[col] = row[i]
			}
			rows = append(rows, rec)
		}
		c.JSON(http.StatusOK, gin.H{
			"columns":  templateHeader,
			"required": []string{"sku", "name"},
			"rows":     rows,
			"note":     uploadNote,
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Unsupported format %q, expected csv, xlsx or json", format),
		})
	}
}

func csvTemplate() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(templateHeader); err != nil {
		return nil, err
	}
	if err := w.WriteAll(templateRows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func xlsxTemplate() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", templateSheet); err != nil {
		return nil, err
	}

	for i, row := range append([][]string{templateHeader}, templateRows...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(templateSheet, cell, &values); err != nil {
			return nil, err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	lastCol, err := excelize.ColumnNumberToName(len(templateHeader))
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(templateSheet, "A1", lastCol+"1", bold); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(templateSheet, "A", lastCol, 28); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(instructionsSheet); err != nil {
		return nil, err
	}
	if err := f.SetCellValue(instructionsSheet, "A1", uploadNote); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(instructionsSheet, "A", "A", 100); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
