package audio

// Action is what the arbiter decided to do with an incoming request
type Action int

const (
	// ActionPlay starts the request on its channel now
	ActionPlay Action = iota

	// ActionQueue holds the request until the channel goes idle; one
	// slot per channel, last writer wins
	ActionQueue

	// ActionInterrupt fades the current item out over its own
	// fade-out, then starts the request
	ActionInterrupt

	// ActionReject refuses the request outright
	ActionReject
)

// String returns the action name
func (a Action) String() string {
	switch a {
	case ActionPlay:
		return "play"
	case ActionQueue:
		return "queue"
	case ActionInterrupt:
		return "interrupt"
	case ActionReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Decision is the arbiter's verdict. DuckTargets lists channels to
// duck while the request plays; ducking accompanies Play and
// Interrupt, it is never a standalone outcome.
type Decision struct {
	Action      Action
	DuckTargets []Category
}

// channelView is the read-only channel snapshot arbitration works on
type channelView struct {
	Category Category
	State    PlaybackState
	Current  *Request
}

// arbiter applies the admission rules. Rules are fixed per category:
// instructional and celebratory speech ducks background music, nothing
// else crosses channels.
type arbiter struct {
	duckSources map[Category]bool
	duckTargets map[Category]bool
}

func newArbiter() *arbiter {
	return &arbiter{
		duckSources: map[Category]bool{
			CategoryInstruction:     true,
			CategorySuccessFeedback: true,
			CategoryCompletion:      true,
		},
		duckTargets: map[Category]bool{
			CategoryBackgroundMusic: true,
		},
	}
}

// admit decides what happens to req given the current channel states.
//
//   - invalid request: Reject
//   - target channel idle: Play
//   - current item outranked and req sets InterruptLower: Interrupt
//   - otherwise: Queue
//
// Equal priority never interrupts; the tie goes to the item already
// holding the channel.
func (a *arbiter) admit(req *Request, views []channelView) Decision {
	if err := req.Validate(); err != nil {
		return Decision{Action: ActionReject}
	}

	var target channelView
	for _, v := range views {
		if v.Category == req.Category {
			target = v
			break
		}
	}

	ducks := a.duckList(req, views)

	if !target.State.active() || target.Current == nil {
		return Decision{Action: ActionPlay, DuckTargets: ducks}
	}
	if target.Current.Priority < req.Priority && req.InterruptLower {
		return Decision{Action: ActionInterrupt, DuckTargets: ducks}
	}
	return Decision{Action: ActionQueue}
}

// duckList returns the channels req should duck while it plays
func (a *arbiter) duckList(req *Request, views []channelView) []Category {
	if !a.duckSources[req.Category] {
		return nil
	}
	var ducks []Category
	for _, v := range views {
		if v.Category == req.Category {
			continue
		}
		if a.duckTargets[v.Category] && v.State == StatePlaying {
			ducks = append(ducks, v.Category)
		}
	}
	return ducks
}
