// Package compat maps a requested blood group to the donor groups allowed to give to it.
package compat

import "github.com/bloodbridge/platform/pkg/common/models"

// donorTable is fixed. AB- accepts only AB- here, which is narrower than clinical practice;
// notification volume depends on this exact table.
var donorTable = map[models.BloodGroup][]models.BloodGroup{
	models.APositive:  {models.APositive, models.ANegative, models.OPositive, models.ONegative},
	models.ANegative:  {models.ANegative, models.ONegative},
	models.BPositive:  {models.BPositive, models.BNegative, models.OPositive, models.ONegative},
	models.BNegative:  {models.BNegative, models.ONegative},
	models.ABPositive: {models.APositive, models.ANegative, models.BPositive, models.BNegative, models.ABPositive, models.ABNegative, models.OPositive, models.ONegative},
	models.ABNegative: {models.ABNegative},
	models.OPositive:  {models.OPositive, models.ONegative},
	models.ONegative:  {models.ONegative},
}

// CompatibleDonors returns the donor groups for requested, in table order.
// Unknown groups yield an empty slice, never an error.
func CompatibleDonors(requested models.BloodGroup) []models.BloodGroup {
	groups, ok := donorTable[requested]
	if !ok {
		return []models.BloodGroup{}
	}
	out := make([]models.BloodGroup, len(groups))
	copy(out, groups)
	return out
}

// CanDonate reports whether a donor of group donor may give to requested.
func CanDonate(donor, requested models.BloodGroup) bool {
	for _, g := range donorTable[requested] {
		if g == donor {
			return true
		}
	}
	return false
}
