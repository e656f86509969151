package budget

import (
	"fmt"
	"strings"

	"prodbudget-backend/internal/auth"
	"prodbudget-backend/internal/database"
	"prodbudget-backend/internal/engine"
	"prodbudget-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const exportSheet = "Budget"

var exportHeader = []any{
	"Account", "Description", "Quantity", "Rate", "Multiplier",
	"Nominal", "Fringes", "Markups", "Total", "Actual",
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func writeSubRows(f *excelize.File, snap *engine.Snapshot, subs []*models.SubAccount, depth int, rowNum *int) error {
	indent := strings.Repeat("    ", depth)
	for _, sub := range subs {
		cell, _ := excelize.CoordinatesToCellName(1, *rowNum)
		row := []any{
			indent + str(sub.Identifier),
			str(sub.Description),
			sub.Quantity,
			sub.Rate,
			sub.Multiplier,
			sub.NominalValue,
			sub.AccumulatedFringeContribution,
			sub.AccumulatedMarkupContribution,
			sub.AccumulatedValue,
			sub.Actual,
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return err
		}
		*rowNum++
		if err := writeSubRows(f, snap, snap.SubChildren[sub.ID], depth+1, rowNum); err != nil {
			return err
		}
	}
	return nil
}

// Workbook renders a budget tree as a spreadsheet: one row per account and
// sub-account, children indented under their parent, a totals row at the end.
func Workbook(snap *engine.Snapshot) (*excelize.File, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(exportSheet, 1, 1, bold); err != nil {
		return nil, err
	}

	rowNum := 2
	for _, a := range snap.Accounts {
		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		row := []any{
			str(a.Identifier),
			str(a.Description),
			nil, nil, nil,
			nil,
			a.AccumulatedFringeContribution,
			a.AccumulatedMarkupContribution,
			a.AccumulatedValue,
			a.Actual,
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, err
		}
		if err := f.SetRowStyle(exportSheet, rowNum, rowNum, bold); err != nil {
			return nil, err
		}
		rowNum++
		if err := writeSubRows(f, snap, snap.AccountChildren[a.ID], 1, &rowNum); err != nil {
			return nil, err
		}
	}

	b := snap.Budget
	cell, _ := excelize.CoordinatesToCellName(1, rowNum)
	total := []any{
		"Total", b.Name,
		nil, nil, nil,
		b.NominalValue,
		b.AccumulatedFringeContribution,
		b.AccumulatedMarkupContribution,
		b.AccumulatedValue,
		b.Actual,
	}
	if err := f.SetSheetRow(exportSheet, cell, &total); err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(exportSheet, rowNum, rowNum, bold); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(exportSheet, "A", "B", 32); err != nil {
		return nil, err
	}
	return f, nil
}

func ExportHandler(variant models.Variant) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid budget id")
		}
		b, err := OwnedVariant(database.DB, userID, uint(id), variant)
		if err != nil {
			return err
		}
		var snap *engine.Snapshot
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			snap, err = engine.LoadSnapshot(tx, uint(id))
			return err
		})
		if err != nil {
			return err
		}
		f, err := Workbook(snap)
		if err != nil {
			return err
		}
		filename := strings.ReplaceAll(b.Name, `"`, "") + ".xlsx"
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
		return f.Write(c.Response().BodyWriter())
	}
}
