package budget

import (
	"prodbudget-backend/internal/auth"
	"prodbudget-backend/internal/database"
	"prodbudget-backend/internal/engine"
	"prodbudget-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TreeMarkup struct {
	ID          uint              `json:"id"`
	Identifier  *string           `json:"identifier"`
	Description *string           `json:"description"`
	Unit        models.MarkupUnit `json:"unit"`
	Rate        *float64          `json:"rate"`
	AccountIDs  []uint            `json:"account_ids,omitempty"`
	SubIDs      []uint            `json:"sub_account_ids,omitempty"`
	Actual      float64           `json:"actual"`
}

type TreeSubAccount struct {
	ID          uint     `json:"id"`
	Identifier  *string  `json:"identifier"`
	Description *string  `json:"description"`
	Order       string   `json:"order"`
	Quantity    *float64 `json:"quantity"`
	Rate        *float64 `json:"rate"`
	Multiplier  *float64 `json:"multiplier"`
	UnitID      *uint    `json:"unit_id"`
	GroupID     *uint    `json:"group_id"`
	ContactID   *uint    `json:"contact_id,omitempty"`
	FringeIDs   []uint   `json:"fringe_ids"`

	NominalValue       float64 `json:"nominal_value"`
	FringeContribution float64 `json:"fringe_contribution"`
	MarkupContribution float64 `json:"markup_contribution"`
	AccumulatedFringe  float64 `json:"accumulated_fringe_contribution"`
	AccumulatedMarkup  float64 `json:"accumulated_markup_contribution"`
	AccumulatedValue   float64 `json:"accumulated_value"`
	Actual             float64 `json:"actual"`

	Children []TreeSubAccount `json:"children"`
	Markups  []TreeMarkup     `json:"markups"`
}

type TreeAccount struct {
	ID          uint    `json:"id"`
	Identifier  *string `json:"identifier"`
	Description *string `json:"description"`
	Order       string  `json:"order"`
	GroupID     *uint   `json:"group_id"`

	AccumulatedFringe float64 `json:"accumulated_fringe_contribution"`
	AccumulatedMarkup float64 `json:"accumulated_markup_contribution"`
	AccumulatedValue  float64 `json:"accumulated_value"`
	Actual            float64 `json:"actual"`

	Children []TreeSubAccount `json:"children"`
	Markups  []TreeMarkup     `json:"markups"`
}

type TreeResponse struct {
	Budget   BudgetResponse `json:"budget"`
	Accounts []TreeAccount  `json:"accounts"`
	Markups  []TreeMarkup   `json:"markups"` // budget-level
}

func renderMarkups(snap *engine.Snapshot, parent engine.NodeRef) []TreeMarkup {
	out := []TreeMarkup{}
	for _, id := range snap.ChildMarkups[parent] {
		m := snap.Markups[id]
		out = append(out, TreeMarkup{
			ID:          m.ID,
			Identifier:  m.Identifier,
			Description: m.Description,
			Unit:        m.Unit,
			Rate:        m.Rate,
			AccountIDs:  snap.MarkupAccounts[id],
			SubIDs:      snap.MarkupSubs[id],
			Actual:      m.Actual,
		})
	}
	return out
}

func renderSub(snap *engine.Snapshot, sub *models.SubAccount) TreeSubAccount {
	node := TreeSubAccount{
		ID:                 sub.ID,
		Identifier:         sub.Identifier,
		Description:        sub.Description,
		Order:              sub.Order,
		Quantity:           sub.Quantity,
		Rate:               sub.Rate,
		Multiplier:         sub.Multiplier,
		UnitID:             sub.UnitID,
		GroupID:            sub.GroupID,
		ContactID:          sub.ContactID,
		FringeIDs:          append([]uint{}, snap.SubFringes[sub.ID]...),
		NominalValue:       sub.NominalValue,
		FringeContribution: sub.FringeContribution,
		MarkupContribution: sub.MarkupContribution,
		AccumulatedFringe:  sub.AccumulatedFringeContribution,
		AccumulatedMarkup:  sub.AccumulatedMarkupContribution,
		AccumulatedValue:   sub.AccumulatedValue,
		Actual:             sub.Actual,
		Children:           []TreeSubAccount{},
		Markups:            renderMarkups(snap, engine.SubRef(sub.ID)),
	}
	for _, child := range snap.SubChildren[sub.ID] {
		node.Children = append(node.Children, renderSub(snap, child))
	}
	return node
}

func TreeHandler(variant models.Variant) fiber.Handler {
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
		// One transaction so the tree read is a consistent snapshot.
		var snap *engine.Snapshot
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			snap, err = engine.LoadSnapshot(tx, uint(id))
			return err
		})
		if err != nil {
			return err
		}
		resp := TreeResponse{
			Budget:   toResponse(snap.Budget),
			Accounts: []TreeAccount{},
			Markups:  renderMarkups(snap, engine.BudgetRef(uint(id))),
		}
		for _, a := range snap.Accounts {
			node := TreeAccount{
				ID:                a.ID,
				Identifier:        a.Identifier,
				Description:       a.Description,
				Order:             a.Order,
				GroupID:           a.GroupID,
				AccumulatedFringe: a.AccumulatedFringeContribution,
				AccumulatedMarkup: a.AccumulatedMarkupContribution,
				AccumulatedValue:  a.AccumulatedValue,
				Actual:            a.Actual,
				Children:          []TreeSubAccount{},
				Markups:           renderMarkups(snap, engine.AccountRef(a.ID)),
			}
			for _, sub := range snap.AccountChildren[a.ID] {
				node.Children = append(node.Children, renderSub(snap, sub))
			}
			resp.Accounts = append(resp.Accounts, node)
		}
		return c.JSON(resp)
	}
}
