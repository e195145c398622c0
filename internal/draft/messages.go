package draft

import (
	"time"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/engine"
)

// Msg is anything the machine's inbox accepts.
type Msg interface{ isDraftMsg() }

// Request runs one engine command. UserID, when set, must own TeamID.
type Request struct {
	Cmd    engine.Command
	UserID string
	Reply  chan Result
}

func (Request) isDraftMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isDraftMsg() {}

// expire is posted by the deadline timer. It is ignored unless the draft is
// still ACTIVE on the same pick with the same deadline.
type expire struct {
	pick     int
	deadline time.Time
}

func (expire) isDraftMsg() {}

type tick struct {
	at time.Time
}

func (tick) isDraftMsg() {}

// Result is the outcome of a Request.
type Result struct {
	Events []engine.Event
	View   View
	Err    error
}

// View is a consistent copy of the machine's state.
type View struct {
	Version int
	State   engine.State
	At      time.Time
}
