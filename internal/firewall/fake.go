package firewall

import "context"

// Fake is an in-memory Firewall for tests.
type Fake struct {
	rules []Rule
	// FailOn, when set, makes EnsureRule fail for matching sources.
	FailOn map[string]error
}

func NewFake() *Fake {
	return &Fake{FailOn: map[string]error{}}
}

func (f *Fake) EnsureRule(ctx context.Context, r Rule) (bool, error) {
	if err, ok := f.FailOn[r.Source]; ok {
		return false, err
	}
	for _, have := range f.rules {
		if have == r {
			return false, nil
		}
	}
	f.rules = append(f.rules, r)
	return true, nil
}

// Rules returns the current ruleset.
func (f *Fake) Rules() []Rule {
	return append([]Rule(nil), f.rules...)
}

// Contains reports whether an identical rule exists.
func (f *Fake) Contains(r Rule) bool {
	for _, have := range f.rules {
		if have == r {
			return true
		}
	}
	return false
}
