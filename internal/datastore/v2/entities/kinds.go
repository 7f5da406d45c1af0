package entities

// Entity kinds as used in logs, metrics labels, skip records and photo refs.
const (
	KindHome       = "home"
	KindLocation   = "location"
	KindLabel      = "label"
	KindItem       = "item"
	KindPolicy     = "policy"
	KindItemLabel  = "item_label"
	KindHomePolicy = "home_policy"
	KindPhoto      = "photo"
)

// CountedKinds lists the kinds whose row counts the validation gate checks, in
// staging order.
var CountedKinds = []string{
	KindHome, KindLocation, KindLabel, KindItem, KindPolicy, KindItemLabel, KindHomePolicy,
}

// AllModels returns every model in dependency order, for AutoMigrate.
func AllModels() []any {
	return []any{
		&Home{},
		&InventoryLocation{},
		&InventoryLabel{},
		&InventoryItem{},
		&InsurancePolicy{},
		&ItemLabel{},
		&HomePolicy{},
		&HomePhoto{},
		&InventoryLocationPhoto{},
		&InventoryItemPhoto{},
		&LegacyPhotoRef{},
		&MigrationState{},
	}
}
