package pipeline

import (
	"errors"

	"github.com/tealeg/xlsx/v2"

	"github.com/aluiziolira/go-scrape-restaurants/models"
)

// SheetName is the worksheet holding the exported table.
const SheetName = "restaurants"

// XLSXWriter builds a workbook in memory and saves it on Close. Cells hold
// the same strings as the CSV export.
type XLSXWriter struct {
	path   string
	staged *stagedFile
	file   *xlsx.File
	sheet  *xlsx.Sheet
}

// NewXLSXWriter stages the destination up front so an unwritable path
// fails before any fetching.
func NewXLSXWriter(filename string) (*XLSXWriter, error) {
	staged, err := createStaged(filename, "create xlsx file")
	if err != nil {
		return nil, err
	}
	if err := staged.File.Close(); err != nil {
		staged.discard()
		return nil, &IOError{Path: filename, Op: "close xlsx file", Err: err}
	}

	book := xlsx.NewFile()
	sheet, err := book.AddSheet(SheetName)
	if err != nil {
		staged.discard()
		return nil, &IOError{Path: filename, Op: "add xlsx sheet", Err: err}
	}

	w := &XLSXWriter{path: filename, staged: staged, file: book, sheet: sheet}
	w.addRow(Header)
	return w, nil
}

func (xw *XLSXWriter) addRow(values []string) {
	row := xw.sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// Write appends restaurants to the worksheet.
func (xw *XLSXWriter) Write(restaurants []*models.Restaurant) error {
	for _, r := range restaurants {
		xw.addRow(Row(r))
	}
	return nil
}

// Close saves the workbook to the staged file and moves it onto the
// destination.
func (xw *XLSXWriter) Close() error {
	if xw.staged.done {
		return nil
	}
	if err := xw.file.Save(xw.staged.Name()); err != nil {
		xw.staged.discard()
		return &IOError{Path: xw.path, Op: "save xlsx file", Err: err}
	}
	return xw.staged.commit()
}

// Discard drops the staged workbook and leaves the destination as it was.
func (xw *XLSXWriter) Discard() error {
	return xw.staged.discard()
}

// Validate ensures the worksheet has its header row.
func (xw *XLSXWriter) Validate() error {
	if len(xw.sheet.Rows) == 0 {
		return &IOError{Path: xw.path, Op: "validate xlsx file", Err: errors.New("sheet has no header")}
	}
	return nil
}
