package policy

import (
	"sort"
	"time"

	"github.com/arnavshah/shift-offer-api/pkg/models"
)

// Weights controls the priority score used to order candidates.
type Weights struct {
	Seniority float64 `yaml:"seniority"`
	Fairness  float64 `yaml:"fairness"`
	Distance  float64 `yaml:"distance"`
}

// DefaultWeights favors seniority, then fairness, with a mild distance penalty.
func DefaultWeights() Weights {
	return Weights{Seniority: 1.0, Fairness: 2.0, Distance: 0.1}
}

// Policy decides who is eligible for a shift and in what order they are
// offered it. The order is computed once per shift-open cycle and frozen.
type Policy struct {
	Weights Weights
}

// New returns a policy with the given weights.
func New(w Weights) *Policy {
	return &Policy{Weights: w}
}

// DurationHours calculates the duration between two times in hours
func DurationHours(shift *models.Shift) float64 {
	return shift.End.Sub(shift.Start).Hours()
}

// Overlap checks if two time ranges overlap
func Overlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// WouldOverlap checks if a staff member's accepted shifts overlap a new one
func (p *Policy) WouldOverlap(staff *models.StaffMember, shift *models.Shift) bool {
	for _, assigned := range staff.AssignedShifts {
		if Overlap(assigned.Start, assigned.End, shift.Start, shift.End) {
			return true
		}
	}
	return false
}

// Eligible checks whether a staff member may be offered a shift.
func (p *Policy) Eligible(shift *models.Shift, staff *models.StaffMember) bool {
	if staff.Department != shift.Department {
		return false
	}
	if staff.OnLeave {
		return false
	}
	if staff.MaxHours > 0 && staff.AssignedHours+DurationHours(shift) > staff.MaxHours {
		return false
	}
	if p.WouldOverlap(staff, shift) {
		return false
	}
	return true
}

// Score computes the priority of a candidate for ordering. Higher goes first.
func (p *Policy) Score(staff *models.StaffMember) float64 {
	fairness := 1.0 / float64(1+staff.AcceptedCount)
	return p.Weights.Seniority*staff.SeniorityYears +
		p.Weights.Fairness*fairness -
		p.Weights.Distance*staff.DistanceKM
}

// BuildCandidateList filters the department roster down to eligible staff and
// orders them by descending score, ties broken by staff id so the order is
// deterministic.
func (p *Policy) BuildCandidateList(shift *models.Shift, roster []models.StaffMember) []string {
	type scored struct {
		id    string
		score float64
	}
	var eligible []scored
	for i := range roster {
		if p.Eligible(shift, &roster[i]) {
			eligible = append(eligible, scored{id: roster[i].ID, score: p.Score(&roster[i])})
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].score != eligible[j].score {
			return eligible[i].score > eligible[j].score
		}
		return eligible[i].id < eligible[j].id
	})
	ids := make([]string, len(eligible))
	for i, e := range eligible {
		ids[i] = e.id
	}
	return ids
}
