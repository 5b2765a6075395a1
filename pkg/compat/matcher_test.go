package compat

import (
	"reflect"
	"testing"

	"github.com/bloodbridge/platform/pkg/common/models"
)

func TestCompatibleDonorsTable(t *testing.T) {
	cases := map[models.BloodGroup][]models.BloodGroup{
		"A+":  {"A+", "A-", "O+", "O-"},
		"A-":  {"A-", "O-"},
		"B+":  {"B+", "B-", "O+", "O-"},
		"B-":  {"B-", "O-"},
		"AB+": {"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"},
		"AB-": {"AB-"},
		"O+":  {"O+", "O-"},
		"O-":  {"O-"},
	}

	if len(cases) != len(models.BloodGroups) {
		t.Fatalf("expected a case per canonical group, got %d", len(cases))
	}

	for requested, want := range cases {
		got := CompatibleDonors(requested)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("%s: expected %v, got %v", requested, want, got)
		}
	}
}

func TestCompatibleDonorsUnknownGroup(t *testing.T) {
	for _, raw := range []models.BloodGroup{"", "C+", "ab+", "O"} {
		got := CompatibleDonors(raw)
		if got == nil || len(got) != 0 {
			t.Fatalf("%q: expected empty non-nil slice, got %#v", raw, got)
		}
	}
}

func TestCompatibleDonorsReturnsCopy(t *testing.T) {
	first := CompatibleDonors(models.APositive)
	first[0] = models.ABNegative
	if CompatibleDonors(models.APositive)[0] != models.APositive {
		t.Fatal("mutating the result must not change the table")
	}
}

func TestCanDonate(t *testing.T) {
	if !CanDonate(models.ONegative, models.APositive) {
		t.Fatal("O- should donate to A+")
	}
	if CanDonate(models.ONegative, models.ABNegative) {
		t.Fatal("AB- accepts only AB- donors")
	}
	if CanDonate(models.APositive, models.ONegative) {
		t.Fatal("A+ must not donate to O-")
	}
}
