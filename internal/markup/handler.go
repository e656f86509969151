package markup

import (
	"errors"
	"time"

	"prodbudget-backend/internal/auth"
	"prodbudget-backend/internal/budget"
	"prodbudget-backend/internal/database"
	"prodbudget-backend/internal/engine"
	"prodbudget-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type MarkupResponse struct {
	ID                 uint              `json:"id"`
	BudgetID           uint              `json:"budget_id"`
	ParentAccountID    *uint             `json:"parent_account_id"`
	ParentSubAccountID *uint             `json:"parent_sub_account_id"`
	Identifier         *string           `json:"identifier"`
	Description        *string           `json:"description"`
	Rate               *float64          `json:"rate"`
	Unit               models.MarkupUnit `json:"unit"`
	AccountIDs         []uint            `json:"account_ids"`
	SubAccountIDs      []uint            `json:"sub_account_ids"`
	Actual             float64           `json:"actual"`

	UpdatedAt time.Time `json:"updated_at"`
}

type CreateMarkupRequest struct {
	ParentAccountID    *uint             `json:"parent_account_id"`
	ParentSubAccountID *uint             `json:"parent_sub_account_id"`
	Identifier         *string           `json:"identifier"`
	Description        *string           `json:"description"`
	Rate               *float64          `json:"rate"`
	Unit               models.MarkupUnit `json:"unit"`
	AccountIDs         []uint            `json:"account_ids"`
	SubAccountIDs      []uint            `json:"sub_account_ids"`
}

type UpdateMarkupRequest struct {
	Identifier  *string            `json:"identifier"`
	Description *string            `json:"description"`
	Rate        *float64           `json:"rate"`
	Unit        *models.MarkupUnit `json:"unit"`
	ClearRate   bool               `json:"clear_rate"`

	// nil leaves the applied set alone; empty empties it.
	AccountIDs    *[]uint `json:"account_ids"`
	SubAccountIDs *[]uint `json:"sub_account_ids"`
}

func applied(tx *gorm.DB, markupID uint) ([]uint, []uint, error) {
	var accountIDs, subIDs []uint
	if err := tx.Table("markup_accounts").Where("markup_id = ?", markupID).
		Pluck("account_id", &accountIDs).Error; err != nil {
		return nil, nil, err
	}
	if err := tx.Table("markup_sub_accounts").Where("markup_id = ?", markupID).
		Pluck("sub_account_id", &subIDs).Error; err != nil {
		return nil, nil, err
	}
	return accountIDs, subIDs, nil
}

func toResponse(tx *gorm.DB, m *models.Markup) (MarkupResponse, error) {
	accountIDs, subIDs, err := applied(tx, m.ID)
	if err != nil {
		return MarkupResponse{}, err
	}
	return MarkupResponse{
		ID:                 m.ID,
		BudgetID:           m.BudgetID,
		ParentAccountID:    m.ParentAccountID,
		ParentSubAccountID: m.ParentSubAccountID,
		Identifier:         m.Identifier,
		Description:        m.Description,
		Rate:               m.Rate,
		Unit:               m.Unit,
		AccountIDs:         accountIDs,
		SubAccountIDs:      subIDs,
		Actual:             m.Actual,
		UpdatedAt:          m.UpdatedAt,
	}, nil
}

func owned(tx *gorm.DB, userID, markupID uint) (*models.Markup, *models.Budget, error) {
	var m models.Markup
	if err := tx.First(&m, markupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fiber.NewError(fiber.StatusNotFound, "Markup not found")
		}
		return nil, nil, err
	}
	b, err := budget.Owned(tx, userID, m.BudgetID)
	if err != nil {
		return nil, nil, err
	}
	return &m, b, nil
}

func validUnit(u models.MarkupUnit) bool {
	return u == models.MarkupUnitPercent || u == models.MarkupUnitFlat
}

func replaceApplied(tx *gorm.DB, m *models.Markup, accountIDs, subIDs []uint) error {
	if err := tx.Exec("DELETE FROM markup_accounts WHERE markup_id = ?", m.ID).Error; err != nil {
		return err
	}
	if err := tx.Exec("DELETE FROM markup_sub_accounts WHERE markup_id = ?", m.ID).Error; err != nil {
		return err
	}
	for _, id := range accountIDs {
		if err := tx.Exec("INSERT INTO markup_accounts (markup_id, account_id) VALUES (?, ?)", m.ID, id).Error; err != nil {
			return err
		}
	}
	for _, id := range subIDs {
		if err := tx.Exec("INSERT INTO markup_sub_accounts (markup_id, sub_account_id) VALUES (?, ?)", m.ID, id).Error; err != nil {
			return err
		}
	}
	return nil
}

// ListHandler lists every markup of a budget.
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
		var markups []models.Markup
		if err := database.DB.Where("budget_id = ?", budgetID).Order("id asc").Find(&markups).Error; err != nil {
			return err
		}
		out := make([]MarkupResponse, 0, len(markups))
		for i := range markups {
			r, err := toResponse(database.DB, &markups[i])
			if err != nil {
				return err
			}
			out = append(out, r)
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
		var body CreateMarkupRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.ParentAccountID != nil && body.ParentSubAccountID != nil {
			return fiber.NewError(fiber.StatusBadRequest, "A markup has one parent")
		}
		if body.Unit == "" {
			body.Unit = models.MarkupUnitPercent
		}
		if !validUnit(body.Unit) {
			return fiber.NewError(fiber.StatusBadRequest, "Unit must be percent or flat")
		}
		b, err := budget.Owned(database.DB, userID, uint(budgetID))
		if err != nil {
			return err
		}
		var m models.Markup
		err = engine.Run(c.Context(), database.DB, b.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
			if body.ParentAccountID != nil {
				var a models.Account
				if err := tx.First(&a, *body.ParentAccountID).Error; err != nil || a.BudgetID != b.ID {
					return fiber.NewError(fiber.StatusBadRequest, "Unknown parent account")
				}
			}
			if body.ParentSubAccountID != nil {
				var p models.SubAccount
				if err := tx.First(&p, *body.ParentSubAccountID).Error; err != nil || p.BudgetID != b.ID {
					return fiber.NewError(fiber.StatusBadRequest, "Unknown parent sub-account")
				}
			}
			m = models.Markup{
				Variant:            b.Variant,
				BudgetID:           b.ID,
				ParentAccountID:    body.ParentAccountID,
				ParentSubAccountID: body.ParentSubAccountID,
				Identifier:         body.Identifier,
				Description:        body.Description,
				Rate:               body.Rate,
				Unit:               body.Unit,
				UpdatedByID:        &userID,
			}
			if err := engine.ValidateMarkupApplied(tx, &m, body.AccountIDs, body.SubAccountIDs); err != nil {
				return err
			}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
			if err := replaceApplied(tx, &m, body.AccountIDs, body.SubAccountIDs); err != nil {
				return err
			}
			s.MarkupAppliedChanged(&m, body.SubAccountIDs, nil)
			return nil
		})
		if err != nil {
			return err
		}
		// reload: the flush recomputed actual after our insert
		if err := database.DB.First(&m, m.ID).Error; err != nil {
			return err
		}
		resp, err := toResponse(database.DB, &m)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(resp)
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
			return fiber.NewError(fiber.StatusBadRequest, "Invalid markup id")
		}
		m, _, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		resp, err := toResponse(database.DB, m)
		if err != nil {
			return err
		}
		return c.JSON(resp)
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
			return fiber.NewError(fiber.StatusBadRequest, "Invalid markup id")
		}
		var body UpdateMarkupRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		m, b, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		err = engine.Run(c.Context(), database.DB, b.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
			monetary := false
			if body.Identifier != nil {
				m.Identifier = body.Identifier
			}
			if body.Description != nil {
				m.Description = body.Description
			}
			if body.ClearRate {
				m.Rate = nil
				monetary = true
			} else if body.Rate != nil {
				m.Rate = body.Rate
				monetary = true
			}
			if body.Unit != nil {
				if !validUnit(*body.Unit) {
					return fiber.NewError(fiber.StatusBadRequest, "Unit must be percent or flat")
				}
				m.Unit = *body.Unit
				monetary = true
			}
			m.UpdatedByID = &userID
			if err := tx.Save(m).Error; err != nil {
				return err
			}

			if body.AccountIDs != nil || body.SubAccountIDs != nil {
				oldAccounts, oldSubs, err := applied(tx, m.ID)
				if err != nil {
					return err
				}
				newAccounts, newSubs := oldAccounts, oldSubs
				if body.AccountIDs != nil {
					newAccounts = *body.AccountIDs
				}
				if body.SubAccountIDs != nil {
					newSubs = *body.SubAccountIDs
				}
				if err := engine.ValidateMarkupApplied(tx, m, newAccounts, newSubs); err != nil {
					return err
				}
				if err := replaceApplied(tx, m, newAccounts, newSubs); err != nil {
					return err
				}
				s.MarkupAppliedChanged(m, diff(newSubs, oldSubs), diff(oldSubs, newSubs))
			}
			if monetary {
				return s.MarkupChanged(tx, m)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if err := database.DB.First(m, m.ID).Error; err != nil {
			return err
		}
		resp, err := toResponse(database.DB, m)
		if err != nil {
			return err
		}
		return c.JSON(resp)
	}
}

// diff returns the ids in a but not in b.
func diff(a, b []uint) []uint {
	in := map[uint]struct{}{}
	for _, id := range b {
		in[id] = struct{}{}
	}
	var out []uint
	for _, id := range a {
		if _, ok := in[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func DeleteHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid markup id")
		}
		m, b, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		err = engine.Run(c.Context(), database.DB, b.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
			// Applied rows shed this markup's contribution; mark them while
			// the join rows still exist.
			if err := s.MarkupChanged(tx, m); err != nil {
				return err
			}
			return engine.DeleteMarkupCascade(tx, m.ID)
		})
		if err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
