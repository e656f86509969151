package contact

import (
	"errors"

	"prodbudget-backend/internal/auth"
	"prodbudget-backend/internal/database"
	"prodbudget-backend/internal/models"
	"prodbudget-backend/internal/rows"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Sub-account units (days, weeks, allow...) are per-user tags like contacts,
// so they live in the same package.

type UnitResponse struct {
	ID    uint    `json:"id"`
	Name  string  `json:"name"`
	Color *string `json:"color"`
	Order string  `json:"order"`
}

type CreateUnitRequest struct {
	Name  string  `json:"name"`
	Color *string `json:"color"`
}

type UpdateUnitRequest struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

func unitTable(userID uint) rows.Table {
	return rows.Table{Model: &models.SubAccountUnit{}, Where: "owner_id = ?", Args: []any{userID}}
}

func toUnitResponse(u *models.SubAccountUnit) UnitResponse {
	return UnitResponse{ID: u.ID, Name: u.Name, Color: u.Color, Order: u.Order}
}

func ownedUnit(tx *gorm.DB, userID, unitID uint) (*models.SubAccountUnit, error) {
	var u models.SubAccountUnit
	if err := tx.First(&u, unitID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Unit not found")
		}
		return nil, err
	}
	if u.OwnerID != userID {
		return nil, fiber.NewError(fiber.StatusForbidden, "Unit belongs to another user")
	}
	return &u, nil
}

func ListUnitsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var units []models.SubAccountUnit
		if err := database.DB.Where("owner_id = ?", userID).
			Order(`"order" asc`).Find(&units).Error; err != nil {
			return err
		}
		out := make([]UnitResponse, 0, len(units))
		for i := range units {
			out = append(out, toUnitResponse(&units[i]))
		}
		return c.JSON(out)
	}
}

func CreateUnitHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var body CreateUnitRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Name is required")
		}
		var u models.SubAccountUnit
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			key, err := rows.Append(tx, unitTable(userID))
			if err != nil {
				return err
			}
			u = models.SubAccountUnit{OwnerID: userID, Name: body.Name, Color: body.Color, Order: key}
			return tx.Create(&u).Error
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toUnitResponse(&u))
	}
}

func UpdateUnitHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid unit id")
		}
		var body UpdateUnitRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		u, err := ownedUnit(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		if body.Name != nil {
			if *body.Name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Name cannot be empty")
			}
			u.Name = *body.Name
		}
		if body.Color != nil {
			u.Color = body.Color
		}
		if err := database.DB.Save(u).Error; err != nil {
			return err
		}
		return c.JSON(toUnitResponse(u))
	}
}

func DeleteUnitHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid unit id")
		}
		u, err := ownedUnit(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.SubAccount{}).Where("unit_id = ?", u.ID).
				UpdateColumn("unit_id", nil).Error; err != nil {
				return err
			}
			return tx.Delete(u).Error
		})
		if err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
