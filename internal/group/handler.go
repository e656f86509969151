package group

import (
	"errors"
	"time"

	"prodbudget-backend/internal/auth"
	"prodbudget-backend/internal/budget"
	"prodbudget-backend/internal/database"
	"prodbudget-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type GroupResponse struct {
	ID                 uint    `json:"id"`
	BudgetID           uint    `json:"budget_id"`
	ParentAccountID    *uint   `json:"parent_account_id"`
	ParentSubAccountID *uint   `json:"parent_sub_account_id"`
	Name               string  `json:"name"`
	Color              *string `json:"color"`

	UpdatedAt time.Time `json:"updated_at"`
}

type CreateGroupRequest struct {
	ParentAccountID    *uint   `json:"parent_account_id"`
	ParentSubAccountID *uint   `json:"parent_sub_account_id"`
	Name               string  `json:"name"`
	Color              *string `json:"color"`
}

type UpdateGroupRequest struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

func toResponse(g *models.Group) GroupResponse {
	return GroupResponse{
		ID:                 g.ID,
		BudgetID:           g.BudgetID,
		ParentAccountID:    g.ParentAccountID,
		ParentSubAccountID: g.ParentSubAccountID,
		Name:               g.Name,
		Color:              g.Color,
		UpdatedAt:          g.UpdatedAt,
	}
}

func owned(tx *gorm.DB, userID, groupID uint) (*models.Group, error) {
	var g models.Group
	if err := tx.First(&g, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Group not found")
		}
		return nil, err
	}
	if _, err := budget.Owned(tx, userID, g.BudgetID); err != nil {
		return nil, err
	}
	return &g, nil
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
		var groups []models.Group
		if err := database.DB.Where("budget_id = ?", budgetID).Order("id asc").Find(&groups).Error; err != nil {
			return err
		}
		out := make([]GroupResponse, 0, len(groups))
		for i := range groups {
			out = append(out, toResponse(&groups[i]))
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
		var body CreateGroupRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Name is required")
		}
		if body.ParentAccountID != nil && body.ParentSubAccountID != nil {
			return fiber.NewError(fiber.StatusBadRequest, "A group has one parent")
		}
		b, err := budget.Owned(database.DB, userID, uint(budgetID))
		if err != nil {
			return err
		}
		if body.ParentAccountID != nil {
			var a models.Account
			if err := database.DB.First(&a, *body.ParentAccountID).Error; err != nil || a.BudgetID != b.ID {
				return fiber.NewError(fiber.StatusBadRequest, "Unknown parent account")
			}
		}
		if body.ParentSubAccountID != nil {
			var sub models.SubAccount
			if err := database.DB.First(&sub, *body.ParentSubAccountID).Error; err != nil || sub.BudgetID != b.ID {
				return fiber.NewError(fiber.StatusBadRequest, "Unknown parent sub-account")
			}
		}
		g := models.Group{
			Variant:            b.Variant,
			BudgetID:           b.ID,
			ParentAccountID:    body.ParentAccountID,
			ParentSubAccountID: body.ParentSubAccountID,
			Name:               body.Name,
			Color:              body.Color,
			UpdatedByID:        &userID,
		}
		if err := database.DB.Create(&g).Error; err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(&g))
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
			return fiber.NewError(fiber.StatusBadRequest, "Invalid group id")
		}
		g, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		return c.JSON(toResponse(g))
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
			return fiber.NewError(fiber.StatusBadRequest, "Invalid group id")
		}
		var body UpdateGroupRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		g, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		if body.Name != nil {
			if *body.Name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Name cannot be empty")
			}
			g.Name = *body.Name
		}
		if body.Color != nil {
			g.Color = body.Color
		}
		g.UpdatedByID = &userID
		if err := database.DB.Save(g).Error; err != nil {
			return err
		}
		return c.JSON(toResponse(g))
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
			return fiber.NewError(fiber.StatusBadRequest, "Invalid group id")
		}
		g, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Account{}).Where("group_id = ?", g.ID).
				UpdateColumn("group_id", nil).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.SubAccount{}).Where("group_id = ?", g.ID).
				UpdateColumn("group_id", nil).Error; err != nil {
				return err
			}
			return tx.Delete(g).Error
		})
		if err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
