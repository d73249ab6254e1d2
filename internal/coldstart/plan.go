package coldstart

import (
	"hash/fnv"
	"slices"
	"time"

	"github.com/hoanghai1803/lumen/internal/models"
)

// PlanDuration is how long after onboarding the learning plan applies.
const PlanDuration = 21 * 24 * time.Hour

// Phase is one step of a learning plan. Categories are cumulative: each
// phase includes everything the previous one did.
type Phase struct {
	Name       string   `json:"name"`
	StartDay   int      `json:"start_day"`
	Categories []string `json:"categories"`
}

// LearningPlan widens a new user's categories over their first weeks.
type LearningPlan struct {
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
	Phases    []Phase   `json:"phases"`
}

// LearningPlan builds the three-phase plan for a user: their top three
// interests, then two related categories, then three diversifying ones.
// started is when the plan begins, usually the onboarding time.
func (h *Handler) LearningPlan(userID string, d *models.Demographics, started time.Time) *LearningPlan {
	var interests []string
	if d != nil {
		interests = d.Interests
	}
	initial := topUnique(interests, 3)
	if len(initial) < 3 {
		initial = topUnique(append(initial, h.Demographic(d).Categories...), 3)
	}

	related := slices.Clone(initial)
	added := 0
	for _, c := range initial {
		for _, r := range h.taxonomy.Related[c] {
			if added == 2 {
				break
			}
			if !slices.Contains(related, r) {
				related = append(related, r)
				added++
			}
		}
	}

	// Diversifying picks walk the full category list from a per-user
	// offset so different users explore different corners.
	diverse := slices.Clone(related)
	all := h.taxonomy.Categories
	offset := int(userHash(userID) % uint32(len(all)))
	added = 0
	for i := 0; i < len(all) && added < 3; i++ {
		c := all[(offset+i)%len(all)]
		if !slices.Contains(diverse, c) {
			diverse = append(diverse, c)
			added++
		}
	}

	return &LearningPlan{
		UserID:    userID,
		StartedAt: started,
		Phases: []Phase{
			{Name: "interests", StartDay: 0, Categories: initial},
			{Name: "related", StartDay: 7, Categories: related},
			{Name: "diversify", StartDay: 14, Categories: diverse},
		},
	}
}

// Active returns the phase in effect at now.
func (p *LearningPlan) Active(now time.Time) Phase {
	day := int(now.Sub(p.StartedAt).Hours() / 24)
	active := p.Phases[0]
	for _, ph := range p.Phases {
		if day >= ph.StartDay {
			active = ph
		}
	}
	return active
}

// ActiveCategories returns the categories in effect at now, or nil once
// the plan has run its course.
func (p *LearningPlan) ActiveCategories(now time.Time) []string {
	if now.Sub(p.StartedAt) >= PlanDuration {
		return nil
	}
	return p.Active(now).Categories
}

func userHash(userID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return h.Sum32()
}
