package fringe

import (
	"errors"
	"time"

	"prodbudget-backend/internal/auth"
	"prodbudget-backend/internal/budget"
	"prodbudget-backend/internal/database"
	"prodbudget-backend/internal/engine"
	"prodbudget-backend/internal/models"
	"prodbudget-backend/internal/rows"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type FringeResponse struct {
	ID       uint              `json:"id"`
	BudgetID uint              `json:"budget_id"`
	Name     string            `json:"name"`
	Rate     *float64          `json:"rate"`
	Cutoff   *float64          `json:"cutoff"`
	Unit     models.FringeUnit `json:"unit"`
	Color    *string           `json:"color"`
	Order    string            `json:"order"`

	UpdatedAt time.Time `json:"updated_at"`
}

type CreateFringeRequest struct {
	Name       string            `json:"name"`
	Rate       *float64          `json:"rate"`
	Cutoff     *float64          `json:"cutoff"`
	Unit       models.FringeUnit `json:"unit"`
	Color      *string           `json:"color"`
	PreviousID *uint             `json:"previous_id"`
	NextID     *uint             `json:"next_id"`
}

type UpdateFringeRequest struct {
	Name        *string            `json:"name"`
	Rate        *float64           `json:"rate"`
	Cutoff      *float64           `json:"cutoff"`
	Unit        *models.FringeUnit `json:"unit"`
	Color       *string            `json:"color"`
	ClearRate   bool               `json:"clear_rate"`
	ClearCutoff bool               `json:"clear_cutoff"`
	PreviousID  *uint              `json:"previous_id"`
	NextID      *uint              `json:"next_id"`
}

func toResponse(f *models.Fringe) FringeResponse {
	return FringeResponse{
		ID:        f.ID,
		BudgetID:  f.BudgetID,
		Name:      f.Name,
		Rate:      f.Rate,
		Cutoff:    f.Cutoff,
		Unit:      f.Unit,
		Color:     f.Color,
		Order:     f.Order,
		UpdatedAt: f.UpdatedAt,
	}
}

func table(budgetID uint) rows.Table {
	return rows.Table{Model: &models.Fringe{}, Where: "budget_id = ?", Args: []any{budgetID}}
}

func owned(tx *gorm.DB, userID, fringeID uint) (*models.Fringe, *models.Budget, error) {
	var f models.Fringe
	if err := tx.First(&f, fringeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fiber.NewError(fiber.StatusNotFound, "Fringe not found")
		}
		return nil, nil, err
	}
	b, err := budget.Owned(tx, userID, f.BudgetID)
	if err != nil {
		return nil, nil, err
	}
	return &f, b, nil
}

func validUnit(u models.FringeUnit) bool {
	return u == models.FringeUnitPercent || u == models.FringeUnitFlat
}

func ListHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		budgetID, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid budget id")
		}
		if _, err := budget.Owned(database.DB, userID, uint(budgetID)); err != nil {
			return err
		}
		var fringes []models.Fringe
		if err := database.DB.Where("budget_id = ?", budgetID).
			Order(`"order" asc`).Find(&fringes).Error; err != nil {
			return err
		}
		out := make([]FringeResponse, 0, len(fringes))
		for i := range fringes {
			out = append(out, toResponse(&fringes[i]))
		}
		return c.JSON(out)
	}
}

func CreateHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		budgetID, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid budget id")
		}
		var body CreateFringeRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Name is required")
		}
		if body.Unit == "" {
			body.Unit = models.FringeUnitPercent
		}
		if !validUnit(body.Unit) {
			return fiber.NewError(fiber.StatusBadRequest, "Unit must be percent or flat")
		}
		b, err := budget.Owned(database.DB, userID, uint(budgetID))
		if err != nil {
			return err
		}
		// A new fringe references no rows yet; nothing recomputes, but the key
		// placement shares the budget lock with concurrent writers.
		var f models.Fringe
		err = engine.Run(c.Context(), database.DB, b.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
			var key string
			var err error
			if body.PreviousID == nil && body.NextID == nil {
				key, err = rows.Append(tx, table(b.ID))
			} else {
				key, err = rows.Place(tx, table(b.ID), body.PreviousID, body.NextID, 0)
			}
			if err != nil {
				if errors.Is(err, rows.ErrBadNeighbour) {
					return fiber.NewError(fiber.StatusBadRequest, "Neighbour row is not in this table")
				}
				return err
			}
			f = models.Fringe{
				Variant:     b.Variant,
				BudgetID:    b.ID,
				Name:        body.Name,
				Rate:        body.Rate,
				Cutoff:      body.Cutoff,
				Unit:        body.Unit,
				Color:       body.Color,
				Order:       key,
				UpdatedByID: &userID,
			}
			return tx.Create(&f).Error
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(&f))
	}
}

func GetHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid fringe id")
		}
		f, _, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		return c.JSON(toResponse(f))
	}
}

func UpdateHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid fringe id")
		}
		var body UpdateFringeRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		f, b, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		if (body.PreviousID != nil && *body.PreviousID == f.ID) ||
			(body.NextID != nil && *body.NextID == f.ID) {
			return fiber.NewError(fiber.StatusBadRequest, "Row cannot neighbour itself")
		}
		err = engine.Run(c.Context(), database.DB, b.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
			monetary := false
			if body.Name != nil {
				if *body.Name == "" {
					return fiber.NewError(fiber.StatusBadRequest, "Name cannot be empty")
				}
				f.Name = *body.Name
			}
			if body.ClearRate {
				f.Rate = nil
				monetary = true
			} else if body.Rate != nil {
				f.Rate = body.Rate
				monetary = true
			}
			if body.ClearCutoff {
				f.Cutoff = nil
				monetary = true
			} else if body.Cutoff != nil {
				f.Cutoff = body.Cutoff
				monetary = true
			}
			if body.Unit != nil {
				if !validUnit(*body.Unit) {
					return fiber.NewError(fiber.StatusBadRequest, "Unit must be percent or flat")
				}
				f.Unit = *body.Unit
				monetary = true
			}
			if body.Color != nil {
				f.Color = body.Color
			}
			if body.PreviousID != nil || body.NextID != nil {
				key, err := rows.Place(tx, table(b.ID), body.PreviousID, body.NextID, f.ID)
				if err != nil {
					if errors.Is(err, rows.ErrBadNeighbour) {
						return fiber.NewError(fiber.StatusBadRequest, "Neighbour row is not in this table")
					}
					return err
				}
				f.Order = key
				// Fringe sequence decides the order contributions sum in.
				monetary = true
			}
			f.UpdatedByID = &userID
			if err := tx.Save(f).Error; err != nil {
				return err
			}
			if monetary {
				return s.FringeChanged(tx, f.ID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return c.JSON(toResponse(f))
	}
}

func DeleteHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid fringe id")
		}
		f, b, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		err = engine.Run(c.Context(), database.DB, b.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
			// Mark referencing rows before the join rows disappear.
			if err := s.FringeChanged(tx, f.ID); err != nil {
				return err
			}
			if err := tx.Exec("DELETE FROM sub_account_fringes WHERE fringe_id = ?", f.ID).Error; err != nil {
				return err
			}
			return tx.Delete(f).Error
		})
		if err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
