// Package trace defines the step events an agent turn emits. Events are
// typed rather than path-matched: the relay filters by kind, never by
// string inspection of provider internals.
package trace

// Kind discriminates step events.
type Kind int

const (
	// KindFragment is a partial-token addition to the final answer.
	KindFragment Kind = iota
	// KindToolStart marks the beginning of a tool invocation.
	KindToolStart
	// KindToolEnd marks the completion of a tool invocation.
	KindToolEnd
	// KindEnding is the terminal event of an answered turn, carrying the
	// complete generation text.
	KindEnding
	// KindParamsInquiry is the terminal event of a turn that requests
	// missing parameters, carrying the inquiry JSON.
	KindParamsInquiry
)

// Event is one step-trace record. Exactly one terminal event (Ending or
// ParamsInquiry) is emitted per turn; fragments never follow it.
type Event struct {
	Kind Kind
	Tool string
	Text string
}

// Terminal reports whether e ends the turn.
func (e Event) Terminal() bool {
	return e.Kind == KindEnding || e.Kind == KindParamsInquiry
}

// Emit is the sink signature producers write events to.
type Emit func(Event)

func Fragment(text string) Event {
	return Event{Kind: KindFragment, Text: text}
}

func ToolStart(name, args string) Event {
	return Event{Kind: KindToolStart, Tool: name, Text: args}
}

func ToolEnd(name, out string) Event {
	return Event{Kind: KindToolEnd, Tool: name, Text: out}
}

func Ending(content string) Event {
	return Event{Kind: KindEnding, Text: content}
}

func ParamsInquiry(content string) Event {
	return Event{Kind: KindParamsInquiry, Text: content}
}
