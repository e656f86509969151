package account

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

type AccountResponse struct {
	ID          uint    `json:"id"`
	BudgetID    uint    `json:"budget_id"`
	Identifier  *string `json:"identifier"`
	Description *string `json:"description"`
	Order       string  `json:"order"`
	GroupID     *uint   `json:"group_id"`

	AccumulatedFringe float64 `json:"accumulated_fringe_contribution"`
	AccumulatedMarkup float64 `json:"accumulated_markup_contribution"`
	AccumulatedValue  float64 `json:"accumulated_value"`
	Actual            float64 `json:"actual"`

	UpdatedAt time.Time `json:"updated_at"`
}

type CreateAccountRequest struct {
	Identifier  *string `json:"identifier"`
	Description *string `json:"description"`
	GroupID     *uint   `json:"group_id"`
	PreviousID  *uint   `json:"previous_id"`
	NextID      *uint   `json:"next_id"`
}

type UpdateAccountRequest struct {
	Identifier  *string `json:"identifier"`
	Description *string `json:"description"`
	GroupID     *uint   `json:"group_id"`
	ClearGroup  bool    `json:"clear_group"`
}

type MoveRequest struct {
	PreviousID *uint `json:"previous_id"`
	NextID     *uint `json:"next_id"`
}

type BulkUpdateRequest struct {
	Updates []struct {
		ID uint `json:"id"`
		UpdateAccountRequest
	} `json:"updates"`
}

func toResponse(a *models.Account) AccountResponse {
	return AccountResponse{
		ID:                a.ID,
		BudgetID:          a.BudgetID,
		Identifier:        a.Identifier,
		Description:       a.Description,
		Order:             a.Order,
		GroupID:           a.GroupID,
		AccumulatedFringe: a.AccumulatedFringeContribution,
		AccumulatedMarkup: a.AccumulatedMarkupContribution,
		AccumulatedValue:  a.AccumulatedValue,
		Actual:            a.Actual,
		UpdatedAt:         a.UpdatedAt,
	}
}

// owned loads an account and checks the budget behind it belongs to the user.
func owned(tx *gorm.DB, userID, accountID uint) (*models.Account, *models.Budget, error) {
	var a models.Account
	if err := tx.First(&a, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fiber.NewError(fiber.StatusNotFound, "Account not found")
		}
		return nil, nil, err
	}
	b, err := budget.Owned(tx, userID, a.BudgetID)
	if err != nil {
		return nil, nil, err
	}
	return &a, b, nil
}

func table(budgetID uint) rows.Table {
	return rows.Table{Model: &models.Account{}, Where: "budget_id = ?", Args: []any{budgetID}}
}

// validateGroup accepts only budget-level groups of the same budget.
func validateGroup(tx *gorm.DB, budgetID, groupID uint) error {
	var g models.Group
	if err := tx.First(&g, groupID).Error; err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Unknown group")
	}
	if g.BudgetID != budgetID || g.ParentAccountID != nil || g.ParentSubAccountID != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Group does not belong to this table")
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
		if _, err := budget.Owned(database.DB, userID, uint(budgetID)); err != nil {
			return err
		}
		var accounts []models.Account
		if err := database.DB.Where("budget_id = ?", budgetID).
			Order(`"order" asc`).Find(&accounts).Error; err != nil {
			return err
		}
		out := make([]AccountResponse, 0, len(accounts))
		for i := range accounts {
			out = append(out, toResponse(&accounts[i]))
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
		var body CreateAccountRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		b, err := budget.Owned(database.DB, userID, uint(budgetID))
		if err != nil {
			return err
		}
		var a models.Account
		err = engine.Run(c.Context(), database.DB, b.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
			if body.GroupID != nil {
				if err := validateGroup(tx, b.ID, *body.GroupID); err != nil {
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
			a = models.Account{
				Variant:     b.Variant,
				BudgetID:    b.ID,
				Identifier:  body.Identifier,
				Description: body.Description,
				Order:       key,
				GroupID:     body.GroupID,
				UpdatedByID: &userID,
			}
			if err := tx.Create(&a).Error; err != nil {
				return err
			}
			s.MarkDirty(engine.AccountRef(a.ID))
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
			return fiber.NewError(fiber.StatusBadRequest, "Invalid account id")
		}
		a, _, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		return c.JSON(toResponse(a))
	}
}

func applyPatch(tx *gorm.DB, a *models.Account, patch *UpdateAccountRequest, userID uint) error {
	if patch.Identifier != nil {
		a.Identifier = patch.Identifier
	}
	if patch.Description != nil {
		a.Description = patch.Description
	}
	if patch.ClearGroup {
		a.GroupID = nil
	} else if patch.GroupID != nil {
		if err := validateGroup(tx, a.BudgetID, *patch.GroupID); err != nil {
			return err
		}
		a.GroupID = patch.GroupID
	}
	a.UpdatedByID = &userID
	return tx.Save(a).Error
}

func UpdateHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid account id")
		}
		var body UpdateAccountRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		a, _, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		// Identifier, description and grouping carry no monetary meaning, so
		// no boundary runs here.
		if err := applyPatch(database.DB, a, &body, userID); err != nil {
			return err
		}
		return c.JSON(toResponse(a))
	}
}

func MoveHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid account id")
		}
		var body MoveRequest
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
			key, err := rows.Place(tx, table(b.ID), body.PreviousID, body.NextID, a.ID)
			if err != nil {
				if errors.Is(err, rows.ErrBadNeighbour) {
					return fiber.NewError(fiber.StatusBadRequest, "Neighbour row is not in this table")
				}
				return err
			}
			a.Order = key
			a.UpdatedByID = &userID
			if err := tx.Save(a).Error; err != nil {
				return err
			}
			// Sibling order feeds the parent's left-to-right summation; the
			// budget re-sums so stored aggregates match the new sequence.
			s.MarkDirty(engine.BudgetRef(b.ID))
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
			return fiber.NewError(fiber.StatusBadRequest, "Invalid account id")
		}
		a, b, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		err = engine.Run(c.Context(), database.DB, b.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
			if err := engine.DeleteAccountCascade(tx, a.ID); err != nil {
				return err
			}
			s.RowDeleted(engine.BudgetRef(b.ID))
			return nil
		})
		if err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// BulkUpdateHandler patches several accounts of one budget in a single
// boundary.
func BulkUpdateHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		budgetID, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid budget id")
		}
		var body BulkUpdateRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		b, err := budget.Owned(database.DB, userID, uint(budgetID))
		if err != nil {
			return err
		}
		var out []AccountResponse
		err = engine.Run(c.Context(), database.DB, b.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
			for i := range body.Updates {
				u := &body.Updates[i]
				var a models.Account
				if err := tx.First(&a, u.ID).Error; err != nil {
					return fiber.NewError(fiber.StatusNotFound, "Account not found")
				}
				if a.BudgetID != b.ID {
					return fiber.NewError(fiber.StatusBadRequest, "Account belongs to another budget")
				}
				if err := applyPatch(tx, &a, &u.UpdateAccountRequest, userID); err != nil {
					return err
				}
				out = append(out, toResponse(&a))
			}
			return nil
		})
		if err != nil {
			return err
		}
		return c.JSON(out)
	}
}
