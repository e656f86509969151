package actual

import (
	"errors"
	"fmt"
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

type ActualResponse struct {
	ID         uint                   `json:"id"`
	BudgetID   uint                   `json:"budget_id"`
	OwnerType  models.ActualOwnerType `json:"owner_type"`
	OwnerID    uint                   `json:"owner_id"`
	Name       *string                `json:"name"`
	Value      *float64               `json:"value"`
	Date       *time.Time             `json:"date"`
	Notes      *string                `json:"notes"`
	ContactID  *uint                  `json:"contact_id"`
	ActualType *string                `json:"actual_type"`
	Order      string                 `json:"order"`

	UpdatedAt time.Time `json:"updated_at"`
}

type CreateActualRequest struct {
	OwnerType  models.ActualOwnerType `json:"owner_type"`
	OwnerID    uint                   `json:"owner_id"`
	Name       *string                `json:"name"`
	Value      *float64               `json:"value"`
	Date       *time.Time             `json:"date"`
	Notes      *string                `json:"notes"`
	ContactID  *uint                  `json:"contact_id"`
	ActualType *string                `json:"actual_type"`
	PreviousID *uint                  `json:"previous_id"`
	NextID     *uint                  `json:"next_id"`
}

type UpdateActualRequest struct {
	OwnerType  *models.ActualOwnerType `json:"owner_type"`
	OwnerID    *uint                   `json:"owner_id"`
	Name       *string                 `json:"name"`
	Value      *float64                `json:"value"`
	Date       *time.Time              `json:"date"`
	Notes      *string                 `json:"notes"`
	ContactID  *uint                   `json:"contact_id"`
	ActualType *string                 `json:"actual_type"`

	ClearValue   bool `json:"clear_value"`
	ClearDate    bool `json:"clear_date"`
	ClearContact bool `json:"clear_contact"`

	PreviousID *uint `json:"previous_id"`
	NextID     *uint `json:"next_id"`
}

func toResponse(a *models.Actual) ActualResponse {
	return ActualResponse{
		ID:         a.ID,
		BudgetID:   a.BudgetID,
		OwnerType:  a.OwnerType,
		OwnerID:    a.OwnerID,
		Name:       a.Name,
		Value:      a.Value,
		Date:       a.Date,
		Notes:      a.Notes,
		ContactID:  a.ContactID,
		ActualType: a.ActualType,
		Order:      a.Order,
		UpdatedAt:  a.UpdatedAt,
	}
}

func table(budgetID uint) rows.Table {
	return rows.Table{Model: &models.Actual{}, Where: "budget_id = ?", Args: []any{budgetID}}
}

func owned(tx *gorm.DB, userID, actualID uint) (*models.Actual, *models.Budget, error) {
	var a models.Actual
	if err := tx.First(&a, actualID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fiber.NewError(fiber.StatusNotFound, "Actual not found")
		}
		return nil, nil, err
	}
	b, err := budget.Owned(tx, userID, a.BudgetID)
	if err != nil {
		return nil, nil, err
	}
	return &a, b, nil
}

// validateOwner checks an owner reference points into the actual's own budget.
func validateOwner(tx *gorm.DB, budgetID uint, ownerType models.ActualOwnerType, ownerID uint) error {
	switch ownerType {
	case models.ActualOwnerSubAccount:
		var sub models.SubAccount
		if err := tx.First(&sub, ownerID).Error; err != nil || sub.BudgetID != budgetID {
			return fmt.Errorf("%w: unknown sub-account owner", engine.ErrInvalidReference)
		}
	case models.ActualOwnerMarkup:
		var m models.Markup
		if err := tx.First(&m, ownerID).Error; err != nil || m.BudgetID != budgetID {
			return fmt.Errorf("%w: unknown markup owner", engine.ErrInvalidReference)
		}
	default:
		return fiber.NewError(fiber.StatusBadRequest, "Owner type must be subaccount or markup")
	}
	return nil
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
		if _, err := budget.OwnedVariant(database.DB, userID, uint(budgetID), models.VariantBudget); err != nil {
			return err
		}
		var actuals []models.Actual
		if err := database.DB.Where("budget_id = ?", budgetID).
			Order(`"order" asc`).Find(&actuals).Error; err != nil {
			return err
		}
		out := make([]ActualResponse, 0, len(actuals))
		for i := range actuals {
			out = append(out, toResponse(&actuals[i]))
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
		var body CreateActualRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		// Actuals record realized spend; templates have none.
		b, err := budget.OwnedVariant(database.DB, userID, uint(budgetID), models.VariantBudget)
		if err != nil {
			return err
		}
		var a models.Actual
		err = engine.Run(c.Context(), database.DB, b.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
			if err := validateOwner(tx, b.ID, body.OwnerType, body.OwnerID); err != nil {
				return err
			}
			if body.ContactID != nil {
				if err := engine.ValidateContactRef(tx, userID, *body.ContactID); err != nil {
					return err
				}
			}
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
			a = models.Actual{
				BudgetID:    b.ID,
				OwnerType:   body.OwnerType,
				OwnerID:     body.OwnerID,
				Name:        body.Name,
				Value:       body.Value,
				Date:        body.Date,
				Notes:       body.Notes,
				ContactID:   body.ContactID,
				ActualType:  body.ActualType,
				Order:       key,
				UpdatedByID: &userID,
			}
			if err := tx.Create(&a).Error; err != nil {
				return err
			}
			s.ActualChanged(&a)
			return nil
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(&a))
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
			return fiber.NewError(fiber.StatusBadRequest, "Invalid actual id")
		}
		a, _, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		return c.JSON(toResponse(a))
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
			return fiber.NewError(fiber.StatusBadRequest, "Invalid actual id")
		}
		var body UpdateActualRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		a, b, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		if (body.PreviousID != nil && *body.PreviousID == a.ID) ||
			(body.NextID != nil && *body.NextID == a.ID) {
			return fiber.NewError(fiber.StatusBadRequest, "Row cannot neighbour itself")
		}
		err = engine.Run(c.Context(), database.DB, b.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
			monetary := false
			oldOwner := *a
			if body.OwnerType != nil || body.OwnerID != nil {
				newType, newID := a.OwnerType, a.OwnerID
				if body.OwnerType != nil {
					newType = *body.OwnerType
				}
				if body.OwnerID != nil {
					newID = *body.OwnerID
				}
				if err := validateOwner(tx, b.ID, newType, newID); err != nil {
					return err
				}
				a.OwnerType, a.OwnerID = newType, newID
				monetary = true
			}
			if body.Name != nil {
				a.Name = body.Name
			}
			if body.ClearValue {
				a.Value = nil
				monetary = true
			} else if body.Value != nil {
				a.Value = body.Value
				monetary = true
			}
			if body.ClearDate {
				a.Date = nil
			} else if body.Date != nil {
				a.Date = body.Date
			}
			if body.Notes != nil {
				a.Notes = body.Notes
			}
			if body.ClearContact {
				a.ContactID = nil
			} else if body.ContactID != nil {
				if err := engine.ValidateContactRef(tx, userID, *body.ContactID); err != nil {
					return err
				}
				a.ContactID = body.ContactID
			}
			if body.ActualType != nil {
				a.ActualType = body.ActualType
			}
			if body.PreviousID != nil || body.NextID != nil {
				key, err := rows.Place(tx, table(b.ID), body.PreviousID, body.NextID, a.ID)
				if err != nil {
					if errors.Is(err, rows.ErrBadNeighbour) {
						return fiber.NewError(fiber.StatusBadRequest, "Neighbour row is not in this table")
					}
					return err
				}
				a.Order = key
			}
			a.UpdatedByID = &userID
			if err := tx.Save(a).Error; err != nil {
				return err
			}
			if monetary {
				s.ActualChanged(&oldOwner) // the old owner loses the amount
				s.ActualChanged(a)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return c.JSON(toResponse(a))
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
			return fiber.NewError(fiber.StatusBadRequest, "Invalid actual id")
		}
		a, b, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		err = engine.Run(c.Context(), database.DB, b.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
			if err := tx.Where("actual_id = ?", a.ID).Delete(&models.Attachment{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(a).Error; err != nil {
				return err
			}
			s.ActualChanged(a)
			return nil
		})
		if err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
