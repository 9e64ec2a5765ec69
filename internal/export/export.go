package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lanread/internal/models"

	"github.com/xuri/excelize/v2"
)

// WriteAnnotationsXLSX writes every annotation to an Excel workbook under
// dir and returns the file path.
func WriteAnnotationsXLSX(dir string, annotations []models.Annotation) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Annotations"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{"Book", "Author", "Chapter", "Highlight", "Note", "Created"}
	writeHeaderRow(f, sheetName, headers)

	for i, a := range annotations {
		row := i + 2
		setRow(f, sheetName, row,
			a.BookTitle, a.Author, a.Chapter, a.Text, a.Note,
			a.CreatedAt.Format("2006-01-02 15:04"))
	}

	_ = f.SetColWidth(sheetName, "A", "C", 25)
	_ = f.SetColWidth(sheetName, "D", "E", 60)
	_ = f.SetColWidth(sheetName, "F", "F", 18)
	_ = f.DeleteSheet("Sheet1")

	filePath := filepath.Join(dir, fmt.Sprintf("annotations_%s.xlsx", time.Now().Format("2006-01-02")))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return filePath, nil
}

// WriteFailedTasksXLSX writes the terminal-failure audit trail to an Excel
// workbook under dir and returns the file path.
func WriteFailedTasksXLSX(dir string, tasks []models.SyncTask) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Failed Tasks"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{"ID", "Type", "Book", "Retries", "Last Error", "Created", "Failed At"}
	writeHeaderRow(f, sheetName, headers)

	for i, t := range tasks {
		row := i + 2
		lastError := ""
		if t.LastError != nil {
			lastError = *t.LastError
		}
		processedAt := ""
		if t.ProcessedAt != nil {
			processedAt = t.ProcessedAt.Format("2006-01-02 15:04")
		}
		setRow(f, sheetName, row,
			t.ID, t.TaskType, t.BookID, t.RetryCount, lastError,
			t.CreatedAt.Format("2006-01-02 15:04"), processedAt)
	}

	_ = f.SetColWidth(sheetName, "A", "D", 12)
	_ = f.SetColWidth(sheetName, "E", "E", 60)
	_ = f.SetColWidth(sheetName, "F", "G", 18)
	_ = f.DeleteSheet("Sheet1")

	filePath := filepath.Join(dir, fmt.Sprintf("failed_tasks_%s.xlsx", time.Now().Format("2006-01-02")))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return filePath, nil
}

func writeHeaderRow(f *excelize.File, sheetName string, headers []string) {
	style, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, style)
	}
}

func setRow(f *excelize.File, sheetName string, row int, values ...interface{}) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheetName, cell, v)
	}
}
