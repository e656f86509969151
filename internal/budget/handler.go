package budget

import (
	"errors"
	"time"

	"prodbudget-backend/internal/auth"
	"prodbudget-backend/internal/database"
	"prodbudget-backend/internal/engine"
	"prodbudget-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type BudgetResponse struct {
	ID             uint                  `json:"id"`
	Variant        models.Variant        `json:"variant"`
	Name           string                `json:"name"`
	ProductionType models.ProductionType `json:"production_type"`
	Image          *string               `json:"image"`
	Archived       bool                  `json:"archived"`

	NominalValue       float64 `json:"nominal_value"`
	FringeContribution float64 `json:"accumulated_fringe_contribution"`
	MarkupContribution float64 `json:"accumulated_markup_contribution"`
	AccumulatedValue   float64 `json:"accumulated_value"`
	Actual             float64 `json:"actual"`

	UpdatedAt time.Time `json:"updated_at"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateBudgetRequest struct {
	Name           string                `json:"name"`
	ProductionType models.ProductionType `json:"production_type"`
	Image          *string               `json:"image"`
}

type UpdateBudgetRequest struct {
	Name           *string                `json:"name"`
	ProductionType *models.ProductionType `json:"production_type"`
	Image          *string                `json:"image"`
	Archived       *bool                  `json:"archived"`
}

type DuplicateRequest struct {
	Name *string `json:"name"`
}

func toResponse(b *models.Budget) BudgetResponse {
	return BudgetResponse{
		ID:                 b.ID,
		Variant:            b.Variant,
		Name:               b.Name,
		ProductionType:     b.ProductionType,
		Image:              b.Image,
		Archived:           b.Archived,
		NominalValue:       b.NominalValue,
		FringeContribution: b.AccumulatedFringeContribution,
		MarkupContribution: b.AccumulatedMarkupContribution,
		AccumulatedValue:   b.AccumulatedValue,
		Actual:             b.Actual,
		UpdatedAt:          b.UpdatedAt,
		CreatedAt:          b.CreatedAt,
	}
}

// Owned resolves a budget/template id against the requesting user. Every
// nested route goes through this check.
func Owned(tx *gorm.DB, userID, budgetID uint) (*models.Budget, error) {
	var b models.Budget
	if err := tx.First(&b, budgetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Budget not found")
		}
		return nil, err
	}
	if b.OwnerID != userID {
		return nil, fiber.NewError(fiber.StatusForbidden, "Budget belongs to another user")
	}
	if b.IsDeleting {
		return nil, fiber.NewError(fiber.StatusNotFound, "Budget not found")
	}
	return &b, nil
}

// OwnedVariant is Owned plus a variant check, for routes mounted separately
// under /budgets and /templates.
func OwnedVariant(tx *gorm.DB, userID, budgetID uint, variant models.Variant) (*models.Budget, error) {
	b, err := Owned(tx, userID, budgetID)
	if err != nil {
		return nil, err
	}
	if b.Variant != variant {
		return nil, fiber.NewError(fiber.StatusNotFound, "Budget not found")
	}
	return b, nil
}

func ListHandler(variant models.Variant) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		q := database.DB.Where("owner_id = ? AND variant = ? AND is_deleting = false", userID, variant)
		if c.Query("archived") == "" {
			q = q.Where("archived = false")
		} else if arch := c.QueryBool("archived"); arch {
			q = q.Where("archived = true")
		}
		var budgets []models.Budget
		if err := q.Order("updated_at desc").Find(&budgets).Error; err != nil {
			return err
		}
		out := make([]BudgetResponse, 0, len(budgets))
		for i := range budgets {
			out = append(out, toResponse(&budgets[i]))
		}
		return c.JSON(out)
	}
}

func CreateHandler(variant models.Variant) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var body CreateBudgetRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Name is required")
		}
		if body.ProductionType == "" {
			body.ProductionType = models.ProductionFilm
		}
		b := models.Budget{
			Variant:        variant,
			OwnerID:        userID,
			Name:           body.Name,
			ProductionType: body.ProductionType,
			Image:          body.Image,
			UpdatedByID:    &userID,
		}
		if err := database.DB.Create(&b).Error; err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(&b))
	}
}

func GetHandler(variant models.Variant) fiber.Handler {
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
		return c.JSON(toResponse(b))
	}
}

func UpdateHandler(variant models.Variant) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid budget id")
		}
		var body UpdateBudgetRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		b, err := OwnedVariant(database.DB, userID, uint(id), variant)
		if err != nil {
			return err
		}
		if body.Name != nil {
			if *body.Name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Name cannot be empty")
			}
			b.Name = *body.Name
		}
		if body.ProductionType != nil {
			b.ProductionType = *body.ProductionType
		}
		if body.Image != nil {
			b.Image = body.Image
		}
		if body.Archived != nil {
			b.Archived = *body.Archived
		}
		b.UpdatedByID = &userID
		if err := database.DB.Save(b).Error; err != nil {
			return err
		}
		return c.JSON(toResponse(b))
	}
}

func DeleteHandler(variant models.Variant) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid budget id")
		}
		if _, err := OwnedVariant(database.DB, userID, uint(id), variant); err != nil {
			return err
		}
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			return engine.DeleteBudgetCascade(tx, uint(id))
		})
		if err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func DuplicateHandler(variant models.Variant) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return copyHandler(c, variant, variant, " (copy)")
	}
}

// InstantiateHandler creates a live budget from a template.
func InstantiateHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return copyHandler(c, models.VariantTemplate, models.VariantBudget, "")
	}
}

func copyHandler(c *fiber.Ctx, srcVariant, dstVariant models.Variant, suffix string) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return err
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid budget id")
	}
	var body DuplicateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}
	src, err := OwnedVariant(database.DB, userID, uint(id), srcVariant)
	if err != nil {
		return err
	}
	name := src.Name + suffix
	if body.Name != nil && *body.Name != "" {
		name = *body.Name
	}

	var dst *models.Budget
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		dst, err = copyTree(tx, src, dstVariant, name, userID)
		return err
	})
	if err != nil {
		return err
	}
	// The copy carries no aggregates; one full recompute fills them in.
	err = engine.Run(c.Context(), database.DB, dst.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
		s.MarkAll()
		return nil
	})
	if err != nil {
		return err
	}
	if err := database.DB.First(dst, dst.ID).Error; err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toResponse(dst))
}
