package domain

// LookupKind names one of the intake form's reference lists.
type LookupKind string

const (
	LookupLocation      LookupKind = "locations"
	LookupInsurance     LookupKind = "insurances"
	LookupService       LookupKind = "services"
	LookupTravelAbility LookupKind = "travel_abilities"
)

// Lookup is a reference entry selectable on the intake form.
type Lookup struct {
	ID       string
	Code     string
	Name     string
	IsActive bool
}

// Lookups groups every reference list used by the intake form.
type Lookups struct {
	Locations       []Lookup
	Insurances      []Lookup
	Services        []Lookup
	TravelAbilities []Lookup
}
