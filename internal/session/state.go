package session

import "fmt"

// State 会话状态机:
// Idle → Initializing → Authenticating → {Authenticated | AuthFailed} → Executing → {Completed | Failed} → Closed
type State int

const (
	Idle State = iota
	Initializing
	Authenticating
	Authenticated
	AuthFailed
	Executing
	Completed
	Failed
	Closed
)

var stateNames = [...]string{
	Idle:           "idle",
	Initializing:   "initializing",
	Authenticating: "authenticating",
	Authenticated:  "authenticated",
	AuthFailed:     "auth_failed",
	Executing:      "executing",
	Completed:      "completed",
	Failed:         "failed",
	Closed:         "closed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// 抓取会话不需要登录,允许 Initializing 直接进入 Executing。
// 任何状态都可以进入 Closed。
var transitions = map[State][]State{
	Idle:           {Initializing},
	Initializing:   {Authenticating, Executing, Failed},
	Authenticating: {Authenticated, AuthFailed},
	Authenticated:  {Executing},
	Executing:      {Completed, Failed},
}

func canTransition(from, to State) bool {
	if to == Closed {
		return from != Closed
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
