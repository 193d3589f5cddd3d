package tile

// State is the coarse tile state published to clients.
type State string

const (
	StateActive      State = "active"
	StateInactive    State = "inactive"
	StateUnavailable State = "unavailable"
)

// View is what a host renders for one tile. It is recomputed on every refresh and is
// never mutated in place.
type View struct {
	Spec           string `json:"spec"`
	Label          string `json:"label"`
	SecondaryLabel string `json:"secondary_label,omitempty"`
	Active         bool   `json:"active"`
	Available      bool   `json:"available"`
	State          State  `json:"state"`
}

// stateOf projects availability and activity onto a State.
func stateOf(active, available bool) State {
	switch {
	case !available:
		return StateUnavailable
	case active:
		return StateActive
	default:
		return StateInactive
	}
}
