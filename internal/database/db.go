package database

import (
	"log"

	"prodbudget-backend/internal/config"
	"prodbudget-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	var err error

	DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Could not connect to the database: %v", err)
	}

	err = DB.AutoMigrate(
		&models.User{},
		&models.Contact{},
		&models.SubAccountUnit{},
		&models.Budget{},
		&models.Account{},
		&models.SubAccount{},
		&models.Fringe{},
		&models.Markup{},
		&models.Group{},
		&models.Actual{},
		&models.Attachment{},
	)
	if err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	// AutoMigrate creates the many2many join tables without delete cascades;
	// enforce them so removing a row cleans its references.
	joinFKs := []string{
		`ALTER TABLE sub_account_fringes DROP CONSTRAINT IF EXISTS fk_sub_account_fringes_sub_account`,
		`ALTER TABLE sub_account_fringes ADD CONSTRAINT fk_sub_account_fringes_sub_account
			FOREIGN KEY (sub_account_id) REFERENCES sub_accounts(id) ON DELETE CASCADE`,
		`ALTER TABLE sub_account_fringes DROP CONSTRAINT IF EXISTS fk_sub_account_fringes_fringe`,
		`ALTER TABLE sub_account_fringes ADD CONSTRAINT fk_sub_account_fringes_fringe
			FOREIGN KEY (fringe_id) REFERENCES fringes(id) ON DELETE CASCADE`,
		`ALTER TABLE markup_accounts DROP CONSTRAINT IF EXISTS fk_markup_accounts_markup`,
		`ALTER TABLE markup_accounts ADD CONSTRAINT fk_markup_accounts_markup
			FOREIGN KEY (markup_id) REFERENCES markups(id) ON DELETE CASCADE`,
		`ALTER TABLE markup_accounts DROP CONSTRAINT IF EXISTS fk_markup_accounts_account`,
		`ALTER TABLE markup_accounts ADD CONSTRAINT fk_markup_accounts_account
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE`,
		`ALTER TABLE markup_sub_accounts DROP CONSTRAINT IF EXISTS fk_markup_sub_accounts_markup`,
		`ALTER TABLE markup_sub_accounts ADD CONSTRAINT fk_markup_sub_accounts_markup
			FOREIGN KEY (markup_id) REFERENCES markups(id) ON DELETE CASCADE`,
		`ALTER TABLE markup_sub_accounts DROP CONSTRAINT IF EXISTS fk_markup_sub_accounts_sub_account`,
		`ALTER TABLE markup_sub_accounts ADD CONSTRAINT fk_markup_sub_accounts_sub_account
			FOREIGN KEY (sub_account_id) REFERENCES sub_accounts(id) ON DELETE CASCADE`,
	}
	for _, stmt := range joinFKs {
		if err := DB.Exec(stmt).Error; err != nil {
			log.Printf("join table constraint (may already match): %v", err)
		}
	}

	log.Println("Database connected. Migration complete.")
}
