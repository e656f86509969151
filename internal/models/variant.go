package models

// Variant discriminates budget-variant rows from template-variant rows.
// Nearly every entity carries it; mixing variants in one tree is rejected.
type Variant string

const (
	VariantBudget   Variant = "budget"
	VariantTemplate Variant = "template"
)

type ProductionType string

const (
	ProductionFilm        ProductionType = "film"
	ProductionEpisodic    ProductionType = "episodic"
	ProductionMusicVideo  ProductionType = "music_video"
	ProductionCommercial  ProductionType = "commercial"
	ProductionDocumentary ProductionType = "documentary"
	ProductionCustom      ProductionType = "custom"
)
