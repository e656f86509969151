package attachment

import (
	"errors"
	"time"

	"prodbudget-backend/internal/auth"
	"prodbudget-backend/internal/budget"
	"prodbudget-backend/internal/database"
	"prodbudget-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Attachments are metadata only; the bytes live in whatever object store the
// deployment points StorageKey at.

type AttachmentResponse struct {
	ID           uint      `json:"id"`
	SubAccountID *uint     `json:"sub_account_id"`
	ActualID     *uint     `json:"actual_id"`
	StorageKey   string    `json:"storage_key"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

type CreateAttachmentRequest struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func toResponse(a *models.Attachment) AttachmentResponse {
	return AttachmentResponse{
		ID:           a.ID,
		SubAccountID: a.SubAccountID,
		ActualID:     a.ActualID,
		StorageKey:   a.StorageKey,
		Name:         a.Name,
		Size:         a.Size,
		CreatedAt:    a.CreatedAt,
	}
}

// resolveOwner checks the parent row and that it sits in a budget-variant
// tree the user owns. Templates carry no attachments.
func resolveOwner(tx *gorm.DB, userID uint, kind string, id uint) (subID, actualID *uint, err error) {
	switch kind {
	case "subaccount":
		var sub models.SubAccount
		if err := tx.First(&sub, id).Error; err != nil {
			return nil, nil, fiber.NewError(fiber.StatusNotFound, "Sub-account not found")
		}
		if _, err := budget.OwnedVariant(tx, userID, sub.BudgetID, models.VariantBudget); err != nil {
			return nil, nil, err
		}
		return &sub.ID, nil, nil
	default:
		var a models.Actual
		if err := tx.First(&a, id).Error; err != nil {
			return nil, nil, fiber.NewError(fiber.StatusNotFound, "Actual not found")
		}
		if _, err := budget.Owned(tx, userID, a.BudgetID); err != nil {
			return nil, nil, err
		}
		return nil, &a.ID, nil
	}
}

func ListHandler(ownerKind string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid id")
		}
		subID, actualID, err := resolveOwner(database.DB, userID, ownerKind, uint(id))
		if err != nil {
			return err
		}
		q := database.DB.Order("id asc")
		if subID != nil {
			q = q.Where("sub_account_id = ?", *subID)
		} else {
			q = q.Where("actual_id = ?", *actualID)
		}
		var attachments []models.Attachment
		if err := q.Find(&attachments).Error; err != nil {
			return err
		}
		out := make([]AttachmentResponse, 0, len(attachments))
		for i := range attachments {
			out = append(out, toResponse(&attachments[i]))
		}
		return c.JSON(out)
	}
}

func CreateHandler(ownerKind string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid id")
		}
		var body CreateAttachmentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Name is required")
		}
		subID, actualID, err := resolveOwner(database.DB, userID, ownerKind, uint(id))
		if err != nil {
			return err
		}
		a := models.Attachment{
			OwnerID:      userID,
			SubAccountID: subID,
			ActualID:     actualID,
			StorageKey:   uuid.NewString(),
			Name:         body.Name,
			Size:         body.Size,
		}
		if err := database.DB.Create(&a).Error; err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(&a))
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
			return fiber.NewError(fiber.StatusBadRequest, "Invalid attachment id")
		}
		var a models.Attachment
		if err := database.DB.First(&a, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Attachment not found")
			}
			return err
		}
		if a.OwnerID != userID {
			return fiber.NewError(fiber.StatusForbidden, "Attachment belongs to another user")
		}
		if err := database.DB.Delete(&a).Error; err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
