package models

// LocationType classifies a pickup or delivery site.
type LocationType string

const (
	LocationWarehouse          LocationType = "warehouse"
	LocationPort               LocationType = "port"
	LocationDistributionCenter LocationType = "distribution_center"
	LocationCustomer           LocationType = "customer"
)

// Location is a named site within a tenant. Coordinates are optional.
type Location struct {
	TenantModel
	SoftDelete

	Name      string       `json:"name" db:"name"`
	Address   string       `json:"address,omitempty" db:"address"`
	Latitude  *float64     `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64     `json:"longitude,omitempty" db:"longitude"`
	Type      LocationType `json:"type,omitempty" db:"type"`
}

// LocationPatch lists the location fields an update may change.
type LocationPatch struct {
	Name      *string
	Address   *string
	Latitude  *float64
	Longitude *float64
	Type      *LocationType
}
