package contact

import (
	"errors"
	"time"

	"prodbudget-backend/internal/auth"
	"prodbudget-backend/internal/database"
	"prodbudget-backend/internal/models"
	"prodbudget-backend/internal/rows"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ContactResponse struct {
	ID    uint    `json:"id"`
	Name  string  `json:"name"`
	Email *string `json:"email"`
	Role  *string `json:"role"`
	Phone *string `json:"phone"`
	Order string  `json:"order"`

	UpdatedAt time.Time `json:"updated_at"`
}

type CreateContactRequest struct {
	Name       string  `json:"name"`
	Email      *string `json:"email"`
	Role       *string `json:"role"`
	Phone      *string `json:"phone"`
	PreviousID *uint   `json:"previous_id"`
	NextID     *uint   `json:"next_id"`
}

type UpdateContactRequest struct {
	Name       *string `json:"name"`
	Email      *string `json:"email"`
	Role       *string `json:"role"`
	Phone      *string `json:"phone"`
	PreviousID *uint   `json:"previous_id"`
	NextID     *uint   `json:"next_id"`
}

func toResponse(ct *models.Contact) ContactResponse {
	return ContactResponse{
		ID:        ct.ID,
		Name:      ct.Name,
		Email:     ct.Email,
		Role:      ct.Role,
		Phone:     ct.Phone,
		Order:     ct.Order,
		UpdatedAt: ct.UpdatedAt,
	}
}

func table(userID uint) rows.Table {
	return rows.Table{Model: &models.Contact{}, Where: "owner_id = ?", Args: []any{userID}}
}

func owned(tx *gorm.DB, userID, contactID uint) (*models.Contact, error) {
	var ct models.Contact
	if err := tx.First(&ct, contactID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Contact not found")
		}
		return nil, err
	}
	if ct.OwnerID != userID {
		return nil, fiber.NewError(fiber.StatusForbidden, "Contact belongs to another user")
	}
	return &ct, nil
}

func ListHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var contacts []models.Contact
		if err := database.DB.Where("owner_id = ?", userID).
			Order(`"order" asc`).Find(&contacts).Error; err != nil {
			return err
		}
		out := make([]ContactResponse, 0, len(contacts))
		for i := range contacts {
			out = append(out, toResponse(&contacts[i]))
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
		var body CreateContactRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Name is required")
		}
		var ct models.Contact
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			var key string
			var err error
			if body.PreviousID == nil && body.NextID == nil {
				key, err = rows.Append(tx, table(userID))
			} else {
				key, err = rows.Place(tx, table(userID), body.PreviousID, body.NextID, 0)
			}
			if err != nil {
				if errors.Is(err, rows.ErrBadNeighbour) {
					return fiber.NewError(fiber.StatusBadRequest, "Neighbour row is not in this table")
				}
				return err
			}
			ct = models.Contact{
				OwnerID: userID,
				Name:    body.Name,
				Email:   body.Email,
				Role:    body.Role,
				Phone:   body.Phone,
				Order:   key,
			}
			return tx.Create(&ct).Error
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(&ct))
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
			return fiber.NewError(fiber.StatusBadRequest, "Invalid contact id")
		}
		ct, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		return c.JSON(toResponse(ct))
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
			return fiber.NewError(fiber.StatusBadRequest, "Invalid contact id")
		}
		var body UpdateContactRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		ct, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		if (body.PreviousID != nil && *body.PreviousID == ct.ID) ||
			(body.NextID != nil && *body.NextID == ct.ID) {
			return fiber.NewError(fiber.StatusBadRequest, "Row cannot neighbour itself")
		}
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if body.Name != nil {
				if *body.Name == "" {
					return fiber.NewError(fiber.StatusBadRequest, "Name cannot be empty")
				}
				ct.Name = *body.Name
			}
			if body.Email != nil {
				ct.Email = body.Email
			}
			if body.Role != nil {
				ct.Role = body.Role
			}
			if body.Phone != nil {
				ct.Phone = body.Phone
			}
			if body.PreviousID != nil || body.NextID != nil {
				key, err := rows.Place(tx, table(userID), body.PreviousID, body.NextID, ct.ID)
				if err != nil {
					if errors.Is(err, rows.ErrBadNeighbour) {
						return fiber.NewError(fiber.StatusBadRequest, "Neighbour row is not in this table")
					}
					return err
				}
				ct.Order = key
			}
			return tx.Save(ct).Error
		})
		if err != nil {
			return err
		}
		return c.JSON(toResponse(ct))
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
			return fiber.NewError(fiber.StatusBadRequest, "Invalid contact id")
		}
		ct, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		// Referencing rows keep their money; they just lose the contact tag.
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.SubAccount{}).Where("contact_id = ?", ct.ID).
				UpdateColumn("contact_id", nil).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Actual{}).Where("contact_id = ?", ct.ID).
				UpdateColumn("contact_id", nil).Error; err != nil {
				return err
			}
			return tx.Delete(ct).Error
		})
		if err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
