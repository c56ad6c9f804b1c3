package answer

import "github.com/bull/clinical-rag/internal/provider"

// state of the fallback machine.
type state int

const (
	stateTrying state = iota
	stateSucceeded
	stateExhausted
)

// candidate is one (provider, model) pair of the plan.
type candidate struct {
	provider int // Index into the provider list
	model    string
}

// planFor flattens providers into the ordered candidate list: every model of
// the first provider, then every model of the next.
func planFor(providers []Provider) []candidate {
	var plan []candidate
	for i, p := range providers {
		for _, m := range p.Models {
			plan = append(plan, candidate{provider: i, model: m})
		}
	}
	return plan
}

// machine walks a plan. Transitions depend only on the classified result.
type machine struct {
	plan   []candidate
	cursor int
	state  state
}

func newMachine(plan []candidate) *machine {
	m := &machine{plan: plan}
	if len(plan) == 0 {
		m.state = stateExhausted
	}
	return m
}

func (m *machine) current() candidate {
	return m.plan[m.cursor]
}

// advance applies the result of the current candidate.
func (m *machine) advance(res provider.Result) state {
	if m.state != stateTrying {
		return m.state
	}
	if res.OK() {
		m.state = stateSucceeded
		return m.state
	}
	m.cursor++
	if m.cursor >= len(m.plan) {
		m.state = stateExhausted
	}
	return m.state
}
