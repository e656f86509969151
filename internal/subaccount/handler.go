package subaccount

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

type SubAccountResponse struct {
	ID                 uint     `json:"id"`
	BudgetID           uint     `json:"budget_id"`
	ParentAccountID    *uint    `json:"parent_account_id"`
	ParentSubAccountID *uint    `json:"parent_sub_account_id"`
	Identifier         *string  `json:"identifier"`
	Description        *string  `json:"description"`
	Order              string   `json:"order"`
	Quantity           *float64 `json:"quantity"`
	Rate               *float64 `json:"rate"`
	Multiplier         *float64 `json:"multiplier"`
	UnitID             *uint    `json:"unit_id"`
	GroupID            *uint    `json:"group_id"`
	ContactID          *uint    `json:"contact_id"`
	FringeIDs          []uint   `json:"fringe_ids"`

	NominalValue       float64 `json:"nominal_value"`
	FringeContribution float64 `json:"fringe_contribution"`
	MarkupContribution float64 `json:"markup_contribution"`
	AccumulatedFringe  float64 `json:"accumulated_fringe_contribution"`
	AccumulatedMarkup  float64 `json:"accumulated_markup_contribution"`
	AccumulatedValue   float64 `json:"accumulated_value"`
	Actual             float64 `json:"actual"`

	UpdatedAt time.Time `json:"updated_at"`
}

type CreateSubAccountRequest struct {
	Identifier  *string  `json:"identifier"`
	Description *string  `json:"description"`
	Quantity    *float64 `json:"quantity"`
	Rate        *float64 `json:"rate"`
	Multiplier  *float64 `json:"multiplier"`
	UnitID      *uint    `json:"unit_id"`
	GroupID     *uint    `json:"group_id"`
	ContactID   *uint    `json:"contact_id"`
	FringeIDs   []uint   `json:"fringe_ids"`
	PreviousID  *uint    `json:"previous_id"`
	NextID      *uint    `json:"next_id"`
}

type UpdateSubAccountRequest struct {
	Identifier  *string  `json:"identifier"`
	Description *string  `json:"description"`
	Quantity    *float64 `json:"quantity"`
	Rate        *float64 `json:"rate"`
	Multiplier  *float64 `json:"multiplier"`
	UnitID      *uint    `json:"unit_id"`
	GroupID     *uint    `json:"group_id"`
	ContactID   *uint    `json:"contact_id"`

	ClearQuantity   bool `json:"clear_quantity"`
	ClearRate       bool `json:"clear_rate"`
	ClearMultiplier bool `json:"clear_multiplier"`
	ClearUnit       bool `json:"clear_unit"`
	ClearGroup      bool `json:"clear_group"`
	ClearContact    bool `json:"clear_contact"`
}

type SetFringesRequest struct {
	FringeIDs []uint `json:"fringe_ids"`
}

type MoveRequest struct {
	PreviousID         *uint `json:"previous_id"`
	NextID             *uint `json:"next_id"`
	ParentAccountID    *uint `json:"parent_account_id"`
	ParentSubAccountID *uint `json:"parent_sub_account_id"`
}

type BulkUpdateRequest struct {
	Updates []struct {
		ID uint `json:"id"`
		UpdateSubAccountRequest
	} `json:"updates"`
}

func toResponse(tx *gorm.DB, sub *models.SubAccount) (SubAccountResponse, error) {
	var fringeIDs []uint
	err := tx.Table("sub_account_fringes").
		Where("sub_account_id = ?", sub.ID).Pluck("fringe_id", &fringeIDs).Error
	if err != nil {
		return SubAccountResponse{}, err
	}
	return SubAccountResponse{
		ID:                 sub.ID,
		BudgetID:           sub.BudgetID,
		ParentAccountID:    sub.ParentAccountID,
		ParentSubAccountID: sub.ParentSubAccountID,
		Identifier:         sub.Identifier,
		Description:        sub.Description,
		Order:              sub.Order,
		Quantity:           sub.Quantity,
		Rate:               sub.Rate,
		Multiplier:         sub.Multiplier,
		UnitID:             sub.UnitID,
		GroupID:            sub.GroupID,
		ContactID:          sub.ContactID,
		FringeIDs:          fringeIDs,
		NominalValue:       sub.NominalValue,
		FringeContribution: sub.FringeContribution,
		MarkupContribution: sub.MarkupContribution,
		AccumulatedFringe:  sub.AccumulatedFringeContribution,
		AccumulatedMarkup:  sub.AccumulatedMarkupContribution,
		AccumulatedValue:   sub.AccumulatedValue,
		Actual:             sub.Actual,
		UpdatedAt:          sub.UpdatedAt,
	}, nil
}

// parentInfo is one resolved attachment point: an account or a sub-account,
// with the child table scope that hangs under it.
type parentInfo struct {
	budget             *models.Budget
	ref                engine.NodeRef
	table              rows.Table
	parentAccountID    *uint
	parentSubAccountID *uint
}

func resolveParent(tx *gorm.DB, userID uint, kind engine.NodeKind, parentID uint) (*parentInfo, error) {
	switch kind {
	case engine.KindAccount:
		var a models.Account
		if err := tx.First(&a, parentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fiber.NewError(fiber.StatusNotFound, "Account not found")
			}
			return nil, err
		}
		b, err := budget.Owned(tx, userID, a.BudgetID)
		if err != nil {
			return nil, err
		}
		id := a.ID
		return &parentInfo{
			budget:          b,
			ref:             engine.AccountRef(a.ID),
			table:           rows.Table{Model: &models.SubAccount{}, Where: "parent_account_id = ?", Args: []any{a.ID}},
			parentAccountID: &id,
		}, nil
	default:
		var p models.SubAccount
		if err := tx.First(&p, parentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fiber.NewError(fiber.StatusNotFound, "Sub-account not found")
			}
			return nil, err
		}
		b, err := budget.Owned(tx, userID, p.BudgetID)
		if err != nil {
			return nil, err
		}
		id := p.ID
		return &parentInfo{
			budget:             b,
			ref:                engine.SubRef(p.ID),
			table:              rows.Table{Model: &models.SubAccount{}, Where: "parent_sub_account_id = ?", Args: []any{p.ID}},
			parentSubAccountID: &id,
		}, nil
	}
}

func owned(tx *gorm.DB, userID, subID uint) (*models.SubAccount, *models.Budget, error) {
	var sub models.SubAccount
	if err := tx.First(&sub, subID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fiber.NewError(fiber.StatusNotFound, "Sub-account not found")
		}
		return nil, nil, err
	}
	b, err := budget.Owned(tx, userID, sub.BudgetID)
	if err != nil {
		return nil, nil, err
	}
	return &sub, b, nil
}

// validateGroup accepts only groups parented at the row's own parent node.
func validateGroup(tx *gorm.DB, sub *models.SubAccount, groupID uint) error {
	var g models.Group
	if err := tx.First(&g, groupID).Error; err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Unknown group")
	}
	ok := g.BudgetID == sub.BudgetID &&
		ptrEq(g.ParentAccountID, sub.ParentAccountID) &&
		ptrEq(g.ParentSubAccountID, sub.ParentSubAccountID)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "Group does not belong to this table")
	}
	return nil
}

func ptrEq(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func validateUnit(tx *gorm.DB, userID, unitID uint) error {
	var u models.SubAccountUnit
	if err := tx.First(&u, unitID).Error; err != nil || u.OwnerID != userID {
		return fiber.NewError(fiber.StatusBadRequest, "Unknown unit")
	}
	return nil
}

func replaceFringes(tx *gorm.DB, sub *models.SubAccount, variant models.Variant, ids []uint) error {
	if err := engine.ValidateFringeRefs(tx, sub.BudgetID, variant, ids); err != nil {
		return err
	}
	if err := tx.Exec("DELETE FROM sub_account_fringes WHERE sub_account_id = ?", sub.ID).Error; err != nil {
		return err
	}
	for _, id := range ids {
		if err := tx.Exec("INSERT INTO sub_account_fringes (sub_account_id, fringe_id) VALUES (?, ?)",
			sub.ID, id).Error; err != nil {
			return err
		}
	}
	return nil
}

// ListHandler lists the direct children of one parent node.
func ListHandler(parentKind engine.NodeKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		parentID, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid parent id")
		}
		p, err := resolveParent(database.DB, userID, parentKind, uint(parentID))
		if err != nil {
			return err
		}
		var subs []models.SubAccount
		if err := database.DB.Where(p.table.Where, p.table.Args...).
			Order(`"order" asc`).Find(&subs).Error; err != nil {
			return err
		}
		out := make([]SubAccountResponse, 0, len(subs))
		for i := range subs {
			r, err := toResponse(database.DB, &subs[i])
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return c.JSON(out)
	}
}

func CreateHandler(parentKind engine.NodeKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		parentID, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid parent id")
		}
		var body CreateSubAccountRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		p, err := resolveParent(database.DB, userID, parentKind, uint(parentID))
		if err != nil {
			return err
		}
		b := p.budget
		if body.ContactID != nil && b.Variant != models.VariantBudget {
			return fiber.NewError(fiber.StatusBadRequest, "Templates cannot reference contacts")
		}
		var sub models.SubAccount
		err = engine.Run(c.Context(), database.DB, b.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
			if body.UnitID != nil {
				if err := validateUnit(tx, userID, *body.UnitID); err != nil {
					return err
				}
			}
			if body.ContactID != nil {
				if err := engine.ValidateContactRef(tx, userID, *body.ContactID); err != nil {
					return err
				}
			}
			var key string
			var err error
			if body.PreviousID == nil && body.NextID == nil {
				key, err = rows.Append(tx, p.table)
			} else {
				key, err = rows.Place(tx, p.table, body.PreviousID, body.NextID, 0)
			}
			if err != nil {
				if errors.Is(err, rows.ErrBadNeighbour) {
					return fiber.NewError(fiber.StatusBadRequest, "Neighbour row is not in this table")
				}
				return err
			}
			sub = models.SubAccount{
				Variant:            b.Variant,
				BudgetID:           b.ID,
				ParentAccountID:    p.parentAccountID,
				ParentSubAccountID: p.parentSubAccountID,
				Identifier:         body.Identifier,
				Description:        body.Description,
				Quantity:           body.Quantity,
				Rate:               body.Rate,
				Multiplier:         body.Multiplier,
				UnitID:             body.UnitID,
				ContactID:          body.ContactID,
				Order:              key,
				UpdatedByID:        &userID,
			}
			if err := tx.Create(&sub).Error; err != nil {
				return err
			}
			if body.GroupID != nil {
				if err := validateGroup(tx, &sub, *body.GroupID); err != nil {
					return err
				}
				sub.GroupID = body.GroupID
				if err := tx.Model(&sub).UpdateColumn("group_id", *body.GroupID).Error; err != nil {
					return err
				}
			}
			if len(body.FringeIDs) > 0 {
				if err := replaceFringes(tx, &sub, b.Variant, body.FringeIDs); err != nil {
					return err
				}
			}
			s.SubAccountChanged(&sub)
			return nil
		})
		if err != nil {
			return err
		}
		// reload: the flush rewrote the aggregate columns after our insert
		if err := database.DB.First(&sub, sub.ID).Error; err != nil {
			return err
		}
		resp, err := toResponse(database.DB, &sub)
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
			return fiber.NewError(fiber.StatusBadRequest, "Invalid sub-account id")
		}
		sub, _, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		resp, err := toResponse(database.DB, sub)
		if err != nil {
			return err
		}
		return c.JSON(resp)
	}
}

// applyPatch mutates the row and reports whether a monetary attribute moved.
func applyPatch(tx *gorm.DB, sub *models.SubAccount, patch *UpdateSubAccountRequest, userID uint, variant models.Variant) (bool, error) {
	monetary := false
	if patch.Identifier != nil {
		sub.Identifier = patch.Identifier
	}
	if patch.Description != nil {
		sub.Description = patch.Description
	}
	if patch.ClearQuantity {
		sub.Quantity = nil
		monetary = true
	} else if patch.Quantity != nil {
		sub.Quantity = patch.Quantity
		monetary = true
	}
	if patch.ClearRate {
		sub.Rate = nil
		monetary = true
	} else if patch.Rate != nil {
		sub.Rate = patch.Rate
		monetary = true
	}
	if patch.ClearMultiplier {
		sub.Multiplier = nil
		monetary = true
	} else if patch.Multiplier != nil {
		sub.Multiplier = patch.Multiplier
		monetary = true
	}
	if patch.ClearUnit {
		sub.UnitID = nil
	} else if patch.UnitID != nil {
		if err := validateUnit(tx, userID, *patch.UnitID); err != nil {
			return false, err
		}
		sub.UnitID = patch.UnitID
	}
	if patch.ClearGroup {
		sub.GroupID = nil
	} else if patch.GroupID != nil {
		if err := validateGroup(tx, sub, *patch.GroupID); err != nil {
			return false, err
		}
		sub.GroupID = patch.GroupID
	}
	if patch.ClearContact {
		sub.ContactID = nil
	} else if patch.ContactID != nil {
		if variant != models.VariantBudget {
			return false, fiber.NewError(fiber.StatusBadRequest, "Templates cannot reference contacts")
		}
		if err := engine.ValidateContactRef(tx, userID, *patch.ContactID); err != nil {
			return false, err
		}
		sub.ContactID = patch.ContactID
	}
	sub.UpdatedByID = &userID
	return monetary, tx.Save(sub).Error
}

func UpdateHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid sub-account id")
		}
		var body UpdateSubAccountRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		sub, b, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		err = engine.Run(c.Context(), database.DB, b.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
			monetary, err := applyPatch(tx, sub, &body, userID, b.Variant)
			if err != nil {
				return err
			}
			if monetary {
				s.SubAccountChanged(sub)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if err := database.DB.First(sub, sub.ID).Error; err != nil {
			return err
		}
		resp, err := toResponse(database.DB, sub)
		if err != nil {
			return err
		}
		return c.JSON(resp)
	}
}

// SetFringesHandler replaces the row's fringe set.
func SetFringesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid sub-account id")
		}
		var body SetFringesRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		sub, b, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		err = engine.Run(c.Context(), database.DB, b.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
			if err := replaceFringes(tx, sub, b.Variant, body.FringeIDs); err != nil {
				return err
			}
			s.SubAccountFringesChanged(sub.ID)
			return nil
		})
		if err != nil {
			return err
		}
		if err := database.DB.First(sub, sub.ID).Error; err != nil {
			return err
		}
		resp, err := toResponse(database.DB, sub)
		if err != nil {
			return err
		}
		return c.JSON(resp)
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
			return fiber.NewError(fiber.StatusBadRequest, "Invalid sub-account id")
		}
		var body MoveRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.ParentAccountID != nil && body.ParentSubAccountID != nil {
			return fiber.NewError(fiber.StatusBadRequest, "A row has one parent")
		}
		if (body.PreviousID != nil && *body.PreviousID == uint(id)) ||
			(body.NextID != nil && *body.NextID == uint(id)) {
			return fiber.NewError(fiber.StatusBadRequest, "Row cannot neighbour itself")
		}
		sub, b, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		err = engine.Run(c.Context(), database.DB, b.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
			oldParent := engine.SubParentRef(sub)

			// Reparent when a parent field is present; otherwise stay put.
			newRef := oldParent
			var table rows.Table
			switch {
			case body.ParentAccountID != nil:
				p, err := resolveParent(tx, userID, engine.KindAccount, *body.ParentAccountID)
				if err != nil {
					return err
				}
				if p.budget.ID != b.ID {
					if err := engine.CheckVariant(b.Variant, p.budget.Variant); err != nil {
						return err
					}
					return fmt.Errorf("%w: parent belongs to another budget", engine.ErrInvalidReference)
				}
				sub.ParentAccountID = body.ParentAccountID
				sub.ParentSubAccountID = nil
				newRef, table = p.ref, p.table
			case body.ParentSubAccountID != nil:
				if cyc, err := engine.WouldCycle(tx, sub.ID, *body.ParentSubAccountID); err != nil {
					return err
				} else if cyc {
					return fmt.Errorf("%w: sub-account %d under its own subtree", engine.ErrCycleDetected, sub.ID)
				}
				p, err := resolveParent(tx, userID, engine.KindSubAccount, *body.ParentSubAccountID)
				if err != nil {
					return err
				}
				if p.budget.ID != b.ID {
					if err := engine.CheckVariant(b.Variant, p.budget.Variant); err != nil {
						return err
					}
					return fmt.Errorf("%w: parent belongs to another budget", engine.ErrInvalidReference)
				}
				sub.ParentAccountID = nil
				sub.ParentSubAccountID = body.ParentSubAccountID
				newRef, table = p.ref, p.table
			default:
				p, err := resolveParent(tx, userID, oldParent.Kind, oldParent.ID)
				if err != nil {
					return err
				}
				table = p.table
			}
			// Moving under a different parent drops the old group tag; groups
			// live per table.
			if newRef != oldParent {
				sub.GroupID = nil
			}
			key, err := rows.Place(tx, table, body.PreviousID, body.NextID, sub.ID)
			if err != nil {
				if errors.Is(err, rows.ErrBadNeighbour) {
					return fiber.NewError(fiber.StatusBadRequest, "Neighbour row is not in this table")
				}
				return err
			}
			sub.Order = key
			sub.UpdatedByID = &userID
			if err := tx.Save(sub).Error; err != nil {
				return err
			}
			s.SubAccountMoved(oldParent, newRef)
			return nil
		})
		if err != nil {
			return err
		}
		if err := database.DB.First(sub, sub.ID).Error; err != nil {
			return err
		}
		resp, err := toResponse(database.DB, sub)
		if err != nil {
			return err
		}
		return c.JSON(resp)
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
			return fiber.NewError(fiber.StatusBadRequest, "Invalid sub-account id")
		}
		sub, b, err := owned(database.DB, userID, uint(id))
		if err != nil {
			return err
		}
		err = engine.Run(c.Context(), database.DB, b.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
			former := engine.SubParentRef(sub)
			if err := engine.DeleteSubAccountCascade(tx, sub.ID); err != nil {
				return err
			}
			s.RowDeleted(former)
			return nil
		})
		if err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// BulkUpdateHandler patches several children of one parent in a single
// boundary; aggregates above them recompute once.
func BulkUpdateHandler(parentKind engine.NodeKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		parentID, err := c.ParamsInt("id")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid parent id")
		}
		var body BulkUpdateRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		p, err := resolveParent(database.DB, userID, parentKind, uint(parentID))
		if err != nil {
			return err
		}
		b := p.budget
		var subs []*models.SubAccount
		err = engine.Run(c.Context(), database.DB, b.ID, func(tx *gorm.DB, s *engine.Scheduler) error {
			for i := range body.Updates {
				u := &body.Updates[i]
				var sub models.SubAccount
				if err := tx.First(&sub, u.ID).Error; err != nil {
					return fiber.NewError(fiber.StatusNotFound, "Sub-account not found")
				}
				if engine.SubParentRef(&sub) != p.ref {
					return fiber.NewError(fiber.StatusBadRequest, "Row belongs to another table")
				}
				monetary, err := applyPatch(tx, &sub, &u.UpdateSubAccountRequest, userID, b.Variant)
				if err != nil {
					return err
				}
				if monetary {
					s.SubAccountChanged(&sub)
				}
				subs = append(subs, &sub)
			}
			return nil
		})
		if err != nil {
			return err
		}
		out := make([]SubAccountResponse, 0, len(subs))
		for _, sub := range subs {
			if err := database.DB.First(sub, sub.ID).Error; err != nil {
				return err
			}
			r, err := toResponse(database.DB, sub)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return c.JSON(out)
	}
}
