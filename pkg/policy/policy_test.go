package policy

import (
	"testing"
	"time"

	"github.com/arnavshah/shift-offer-api/pkg/models"
)

func icuShift(hours float64) *models.Shift {
	start := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	return &models.Shift{
		ID:             "s1",
		Department:     "ICU",
		Start:          start,
		End:            start.Add(time.Duration(hours * float64(time.Hour))),
		RequiredStaff:  1,
		RemainingSlots: 1,
		Status:         models.ShiftOpen,
	}
}

func TestEligibility(t *testing.T) {
	p := New(DefaultWeights())
	shift := icuShift(8)

	cases := []struct {
		name  string
		staff models.StaffMember
		want  bool
	}{
		{"matching department", models.StaffMember{ID: "a", Department: "ICU", MaxHours: 40}, true},
		{"wrong department", models.StaffMember{ID: "b", Department: "ER", MaxHours: 40}, false},
		{"on leave", models.StaffMember{ID: "c", Department: "ICU", MaxHours: 40, OnLeave: true}, false},
		{"over max hours", models.StaffMember{ID: "d", Department: "ICU", MaxHours: 40, AssignedHours: 38}, false},
		{"exactly at max hours", models.StaffMember{ID: "e", Department: "ICU", MaxHours: 40, AssignedHours: 32}, true},
		{"no hour cap", models.StaffMember{ID: "f", Department: "ICU", AssignedHours: 100}, true},
		{"overlapping accepted shift", models.StaffMember{ID: "g", Department: "ICU", MaxHours: 40,
			AssignedShifts: []models.ShiftInterval{{
				ShiftID: "s0",
				Start:   time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC),
				End:     time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC),
			}}}, false},
		{"adjacent accepted shift", models.StaffMember{ID: "h", Department: "ICU", MaxHours: 40,
			AssignedShifts: []models.ShiftInterval{{
				ShiftID: "s0",
				Start:   time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC),
				End:     time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
			}}}, true},
	}

	for _, tc := range cases {
		if got := p.Eligible(shift, &tc.staff); got != tc.want {
			t.Errorf("%s: Eligible = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestOverlap(t *testing.T) {
	day := func(h int) time.Time { return time.Date(2025, 6, 1, h, 0, 0, 0, time.UTC) }

	cases := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd time.Time
		want                       bool
	}{
		{"partial overlap", day(20), day(23), day(22), day(23).Add(3 * time.Hour), true},
		{"contained", day(8), day(20), day(10), day(12), true},
		{"back to back", day(8), day(16), day(16), day(23), false},
		{"disjoint", day(8), day(10), day(12), day(14), false},
	}

	for _, tc := range cases {
		if got := Overlap(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd); got != tc.want {
			t.Errorf("%s: Overlap = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestBuildCandidateListOrdering(t *testing.T) {
	p := New(Weights{Seniority: 1})
	shift := icuShift(8)

	roster := []models.StaffMember{
		{ID: "junior", Department: "ICU", MaxHours: 80, SeniorityYears: 2},
		{ID: "senior", Department: "ICU", MaxHours: 80, SeniorityYears: 12},
		{ID: "mid", Department: "ICU", MaxHours: 80, SeniorityYears: 7},
		{ID: "other-dept", Department: "ER", MaxHours: 80, SeniorityYears: 20},
	}

	got := p.BuildCandidateList(shift, roster)
	want := []string{"senior", "mid", "junior"}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestFairnessFavorsFewerAcceptances(t *testing.T) {
	p := New(Weights{Fairness: 10})
	shift := icuShift(8)

	roster := []models.StaffMember{
		{ID: "busy", Department: "ICU", MaxHours: 80, AcceptedCount: 5},
		{ID: "fresh", Department: "ICU", MaxHours: 80, AcceptedCount: 0},
	}

	got := p.BuildCandidateList(shift, roster)
	if len(got) != 2 || got[0] != "fresh" {
		t.Errorf("expected fresh first, got %v", got)
	}
}

func TestDistancePenalty(t *testing.T) {
	p := New(Weights{Distance: 1})
	shift := icuShift(8)

	roster := []models.StaffMember{
		{ID: "far", Department: "ICU", MaxHours: 80, DistanceKM: 30},
		{ID: "near", Department: "ICU", MaxHours: 80, DistanceKM: 2},
	}

	got := p.BuildCandidateList(shift, roster)
	if len(got) != 2 || got[0] != "near" {
		t.Errorf("expected near first, got %v", got)
	}
}

func TestTieBreakIsDeterministic(t *testing.T) {
	p := New(Weights{})
	shift := icuShift(8)

	roster := []models.StaffMember{
		{ID: "zeta", Department: "ICU", MaxHours: 80},
		{ID: "alpha", Department: "ICU", MaxHours: 80},
	}

	got := p.BuildCandidateList(shift, roster)
	if len(got) != 2 || got[0] != "alpha" || got[1] != "zeta" {
		t.Errorf("expected id-ordered tie break, got %v", got)
	}
}

func TestDurationHours(t *testing.T) {
	if d := DurationHours(icuShift(8)); d != 8.0 {
		t.Errorf("expected 8.0 hours, got %f", d)
	}
}
