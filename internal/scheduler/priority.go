package scheduler

import (
	"fmt"
	"sort"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const (
	labPriorityBonus         = 10
	specializedPriorityBonus = 20
	studentsPerPriorityPoint = 10
)

// requirementPriority scores how urgently a requirement should be placed. Lower goes first.
func requirementPriority(gc *GenerationContext, subject *models.Subject, group *models.ClassGroup) int {
	priority := 0
	if subject.IsLab() {
		priority -= labPriorityBonus
	}
	if len(gc.specialized[subject.ID]) > 0 {
		priority -= specializedPriorityBonus
	}
	priority += len(subject.TeacherIDs)
	priority -= group.StudentsCount / studentsPerPriorityPoint
	return priority
}

// rankRequirements orders requirements by ascending priority and shuffles
// each band of equal priority with the run's PRNG.
func rankRequirements(gc *GenerationContext, requirements []Requirement) []Requirement {
	ranked := append([]Requirement(nil), requirements...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Priority < ranked[j].Priority
	})

	bands := 0
	for start := 0; start < len(ranked); {
		end := start + 1
		for end < len(ranked) && ranked[end].Priority == ranked[start].Priority {
			end++
		}
		band := ranked[start:end]
		gc.rng.Shuffle(len(band), func(i, j int) { band[i], band[j] = band[j], band[i] })
		bands++
		start = end
	}

	gc.emit(EventRequirementsRanked, LevelDebug,
		fmt.Sprintf("ranked %d requirements in %d priority bands", len(ranked), bands),
		map[string]any{"bands": bands})
	return ranked
}
