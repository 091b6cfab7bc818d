package domain

// FigureProcess is the structured reading of a process diagram:
// the steps, branch decisions, involved actors and terminal states
// inferred from the figure. Fields may be empty when the diagram is
// unclear; the accompanying summary states the uncertainty.
type FigureProcess struct {
	Steps     []string `json:"steps"`
	Decisions []string `json:"decisions"`
	Actors    []string `json:"actors"`
	EndStates []string `json:"end_states"`
}
