package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MackHatch/etl-studio/db/models"

	"github.com/xuri/excelize/v2"
)

// ReportDir is where generated error reports land. Cleaned up periodically
// by the scheduled cleanup job.
var ReportDir = "./public/files"

// EnsureDirectoryExists ensures the specified directory exists before file saving
func EnsureDirectoryExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		if err := os.MkdirAll(dirPath, 0755); err != nil {
			return fmt.Errorf("error creating directory: %v", err)
		}
	}
	return nil
}

// GenerateErrorReportExcel writes a run's row errors to a workbook and
// returns its path. The raw row is serialized as compact JSON so operators
// can see exactly what the source line contained.
func GenerateErrorReportExcel(runID string, rowErrors []models.ImportRowError) (string, error) {
	if err := EnsureDirectoryExists(ReportDir); err != nil {
		return "", err
	}

	f := excelize.NewFile()
	sheetName := "Errors"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headers := []string{"RowNumber", "Field", "Message", "RawRow"}
	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return "", fmt.Errorf("error setting header %s: %v", header, err)
		}
	}

	for i, rowErr := range rowErrors {
		rowIdx := i + 2
		field := ""
		if rowErr.Field != nil {
			field = *rowErr.Field
		}
		rawJSON := ""
		if rowErr.RawRow != nil {
			if b, err := json.Marshal(rowErr.RawRow); err == nil {
				rawJSON = string(b)
			}
		}
		values := []interface{}{rowErr.RowNumber, field, rowErr.Message, rawJSON}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowIdx)
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return "", fmt.Errorf("error writing row %d: %v", rowIdx, err)
			}
		}
	}

	filePath := filepath.Join(ReportDir, fmt.Sprintf("import_errors_%s.xlsx", CleanStringForFilename(runID)))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving report: %v", err)
	}
	return filePath, nil
}
