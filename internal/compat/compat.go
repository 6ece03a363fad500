package compat

import "github.com/example/carpool/internal/models"

// Policy decides whether a travelling party may ride in a given car. It must
// be pure and total: same inputs, same answer, no side effects. The booking
// engine and the wish matcher evaluate the same policy, so a ride that fails
// the gate can neither be booked nor matched.
type Policy interface {
	Allows(party models.Party, driver models.Profile, occupants models.Occupants) bool
}

// DefaultPolicy is the single-gender-car rule with couple exceptions:
// couples may join any car, and any car already carrying a couple is open to
// everyone. A solo traveller otherwise needs someone of their own gender in
// the car, counting the driver.
type DefaultPolicy struct{}

func (DefaultPolicy) Allows(party models.Party, driver models.Profile, occ models.Occupants) bool {
	if party.Travel == models.TravelCouple {
		return true
	}
	if occ.Couples > 0 {
		return true
	}
	if party.Gender == driver.Gender {
		return true
	}
	switch party.Gender {
	case models.GenderFemale:
		return occ.Females > 0
	case models.GenderMale:
		return occ.Males > 0
	}
	return false
}

// OpenPolicy admits everyone. Useful for markets where the gender rule is
// disabled and as a baseline in tests.
type OpenPolicy struct{}

func (OpenPolicy) Allows(models.Party, models.Profile, models.Occupants) bool { return true }

// FromName maps a configured policy name to an implementation,
// falling back to the default rule.
func FromName(name string) Policy {
	if name == "open" {
		return OpenPolicy{}
	}
	return DefaultPolicy{}
}
