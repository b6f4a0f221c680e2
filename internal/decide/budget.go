package decide

import (
	"github.com/JakeFAU/crawlscope/internal/curi"
)

// Budget is the state of one frontier queue.
type Budget struct {
	Pending  int64
	Expended int64
	Total    int64
}

// Over reports whether pending plus expended work exceeds the total.
func (b Budget) Over() bool { return b.Pending+b.Expended > b.Total }

// Classifier assigns a queue class key to a record.
type Classifier func(*curi.CrawlURI) string

// Budgets returns the budget of the queue named by classKey. ok is false
// when no such queue exists.
type Budgets func(classKey string) (b Budget, ok bool)

// QueueOverbudget answers d for not-yet-fetched URIs whose queue has
// already been given more work than its budget. The queue is found by
// classifying a throwaway record, so the subject itself is not altered.
func QueueOverbudget(name string, d Decision, model *curi.Model, classify Classifier, budgets Budgets) *Predicated {
	if model == nil {
		model = curi.NewModel(curi.ModelOptions{})
	}
	return NewPredicated(name, d, func(s curi.Subject) bool {
		if _, ok := fetched(s); ok || classify == nil || budgets == nil {
			return false
		}
		u := s.Core().URI()
		if u == nil {
			return false
		}
		probe := model.ToCrawlURI(model.NewCandidate(u), 0)
		key := classify(probe)
		if key == "" {
			return false
		}
		probe.SetClassKey(key)
		b, ok := budgets(probe.ClassKey())
		return ok && b.Over()
	})
}
