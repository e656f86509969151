package main

import (
	"context"
	"log"
	"strings"

	"prodbudget-backend/internal/account"
	"prodbudget-backend/internal/actual"
	"prodbudget-backend/internal/attachment"
	"prodbudget-backend/internal/auth"
	"prodbudget-backend/internal/budget"
	"prodbudget-backend/internal/cache"
	"prodbudget-backend/internal/config"
	"prodbudget-backend/internal/contact"
	"prodbudget-backend/internal/database"
	"prodbudget-backend/internal/engine"
	"prodbudget-backend/internal/fringe"
	"prodbudget-backend/internal/group"
	"prodbudget-backend/internal/markup"
	"prodbudget-backend/internal/models"
	"prodbudget-backend/internal/subaccount"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func errorHandler(c *fiber.Ctx, err error) error {
	if code, status, ok := engine.ErrorCode(err); ok {
		if status >= 500 {
			log.Println("Engine error:", err)
		}
		body := fiber.Map{
			"code":       code,
			"error_type": code,
			"error":      err.Error(),
		}
		if uid, ok := c.Locals(auth.CtxUserIDKey).(uint); ok {
			body["user_id"] = uid
		}
		return c.Status(status).JSON(body)
	}
	if e, ok := err.(*fiber.Error); ok {
		return c.Status(e.Code).JSON(fiber.Map{
			"error": e.Message,
		})
	}
	log.Println("Unexpected error:", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Unexpected server error",
	})
}

func main() {
	cfg := config.Load()
	database.Init(cfg)
	cache.Init(cfg)

	// Committed recompute boundaries announce themselves over redis.
	engine.OnBudgetUpdated = cache.PublishBudgetUpdated

	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))

	api := app.Group("/v1")

	// Public auth
	api.Post("/auth/register", auth.RegisterHandler(cfg))
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())

	// Budgets and templates share a table; the variant splits the routes.
	for _, mount := range []struct {
		prefix  string
		variant models.Variant
	}{
		{"/budgets", models.VariantBudget},
		{"/templates", models.VariantTemplate},
	} {
		protected.Get(mount.prefix, budget.ListHandler(mount.variant))
		protected.Post(mount.prefix, budget.CreateHandler(mount.variant))
		protected.Get(mount.prefix+"/:id", budget.GetHandler(mount.variant))
		protected.Patch(mount.prefix+"/:id", budget.UpdateHandler(mount.variant))
		protected.Delete(mount.prefix+"/:id", budget.DeleteHandler(mount.variant))
		protected.Get(mount.prefix+"/:id/tree", budget.TreeHandler(mount.variant))
		protected.Post(mount.prefix+"/:id/duplicate", budget.DuplicateHandler(mount.variant))
		protected.Get(mount.prefix+"/:id/export", budget.ExportHandler(mount.variant))
	}
	protected.Post("/templates/:id/instantiate", budget.InstantiateHandler())

	// Accounts
	protected.Get("/budgets/:id/accounts", account.ListHandler())
	protected.Post("/budgets/:id/accounts", account.CreateHandler())
	protected.Patch("/budgets/:id/accounts/bulk", account.BulkUpdateHandler())
	protected.Get("/accounts/:id", account.GetHandler())
	protected.Patch("/accounts/:id", account.UpdateHandler())
	protected.Post("/accounts/:id/move", account.MoveHandler())
	protected.Delete("/accounts/:id", account.DeleteHandler())

	// Sub-accounts, nested under an account or another sub-account
	protected.Get("/accounts/:id/subaccounts", subaccount.ListHandler(engine.KindAccount))
	protected.Post("/accounts/:id/subaccounts", subaccount.CreateHandler(engine.KindAccount))
	protected.Patch("/accounts/:id/subaccounts/bulk", subaccount.BulkUpdateHandler(engine.KindAccount))
	protected.Get("/subaccounts/:id/subaccounts", subaccount.ListHandler(engine.KindSubAccount))
	protected.Post("/subaccounts/:id/subaccounts", subaccount.CreateHandler(engine.KindSubAccount))
	protected.Patch("/subaccounts/:id/subaccounts/bulk", subaccount.BulkUpdateHandler(engine.KindSubAccount))
	protected.Get("/subaccounts/:id", subaccount.GetHandler())
	protected.Patch("/subaccounts/:id", subaccount.UpdateHandler())
	protected.Put("/subaccounts/:id/fringes", subaccount.SetFringesHandler())
	protected.Post("/subaccounts/:id/move", subaccount.MoveHandler())
	protected.Delete("/subaccounts/:id", subaccount.DeleteHandler())

	// Fringes
	protected.Get("/budgets/:id/fringes", fringe.ListHandler())
	protected.Post("/budgets/:id/fringes", fringe.CreateHandler())
	protected.Get("/fringes/:id", fringe.GetHandler())
	protected.Patch("/fringes/:id", fringe.UpdateHandler())
	protected.Delete("/fringes/:id", fringe.DeleteHandler())

	// Markups
	protected.Get("/budgets/:id/markups", markup.ListHandler())
	protected.Post("/budgets/:id/markups", markup.CreateHandler())
	protected.Get("/markups/:id", markup.GetHandler())
	protected.Patch("/markups/:id", markup.UpdateHandler())
	protected.Delete("/markups/:id", markup.DeleteHandler())

	// Actuals (budget variant only)
	protected.Get("/budgets/:id/actuals", actual.ListHandler())
	protected.Post("/budgets/:id/actuals", actual.CreateHandler())
	protected.Get("/actuals/:id", actual.GetHandler())
	protected.Patch("/actuals/:id", actual.UpdateHandler())
	protected.Delete("/actuals/:id", actual.DeleteHandler())

	// Groups
	protected.Get("/budgets/:id/groups", group.ListHandler())
	protected.Post("/budgets/:id/groups", group.CreateHandler())
	protected.Get("/groups/:id", group.GetHandler())
	protected.Patch("/groups/:id", group.UpdateHandler())
	protected.Delete("/groups/:id", group.DeleteHandler())

	// Contacts and sub-account units
	protected.Get("/contacts", contact.ListHandler())
	protected.Post("/contacts", contact.CreateHandler())
	protected.Get("/contacts/:id", contact.GetHandler())
	protected.Patch("/contacts/:id", contact.UpdateHandler())
	protected.Delete("/contacts/:id", contact.DeleteHandler())
	protected.Get("/subaccount-units", contact.ListUnitsHandler())
	protected.Post("/subaccount-units", contact.CreateUnitHandler())
	protected.Patch("/subaccount-units/:id", contact.UpdateUnitHandler())
	protected.Delete("/subaccount-units/:id", contact.DeleteUnitHandler())

	// Attachment metadata
	protected.Get("/subaccounts/:id/attachments", attachment.ListHandler("subaccount"))
	protected.Post("/subaccounts/:id/attachments", attachment.CreateHandler("subaccount"))
	protected.Get("/actuals/:id/attachments", attachment.ListHandler("actual"))
	protected.Post("/actuals/:id/attachments", attachment.CreateHandler("actual"))
	protected.Delete("/attachments/:id", attachment.DeleteHandler())

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go group.RunSweeper(sweepCtx, database.DB, cfg.GroupSweepInterval)

	log.Println("Server listening on port:", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}
