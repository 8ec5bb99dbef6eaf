package command

import "fmt"

// Kind tags an Action.
type Kind string

const (
	KindNavigate Kind = "navigate"
	KindEffect   Kind = "effect"
)

// EffectID names a local UI effect executed by the presentation shell.
type EffectID string

const (
	EffectScrollTop      EffectID = "scroll-to-top"
	EffectScrollBottom   EffectID = "scroll-to-bottom"
	EffectReload         EffectID = "reload"
	EffectIncreaseFont   EffectID = "increase-font"
	EffectDecreaseFont   EffectID = "decrease-font"
	EffectDarkModeOn     EffectID = "dark-mode-on"
	EffectDarkModeOff    EffectID = "dark-mode-off"
	EffectHistoryBack    EffectID = "history-back"
	EffectHistoryForward EffectID = "history-forward"
)

var knownEffects = map[EffectID]struct{}{
	EffectScrollTop:      {},
	EffectScrollBottom:   {},
	EffectReload:         {},
	EffectIncreaseFont:   {},
	EffectDecreaseFont:   {},
	EffectDarkModeOn:     {},
	EffectDarkModeOff:    {},
	EffectHistoryBack:    {},
	EffectHistoryForward: {},
}

// Valid reports whether id is one of the supported effects.
func (id EffectID) Valid() bool {
	_, ok := knownEffects[id]
	return ok
}

// Action is either a route change or a UI effect. Exactly one of Path and
// Effect is set, according to Kind.
type Action struct {
	Kind   Kind     `json:"kind"`
	Path   string   `json:"path,omitempty"`
	Effect EffectID `json:"effect,omitempty"`
}

func Navigate(path string) Action { return Action{Kind: KindNavigate, Path: path} }

func Effect(id EffectID) Action { return Action{Kind: KindEffect, Effect: id} }

func (a Action) String() string {
	switch a.Kind {
	case KindNavigate:
		return "navigate(" + a.Path + ")"
	case KindEffect:
		return "effect(" + string(a.Effect) + ")"
	default:
		return "invalid"
	}
}

func (a Action) validate() error {
	switch a.Kind {
	case KindNavigate:
		if a.Path == "" {
			return fmt.Errorf("navigate action requires a path")
		}
		if a.Effect != "" {
			return fmt.Errorf("navigate action must not carry an effect")
		}
	case KindEffect:
		if !a.Effect.Valid() {
			return fmt.Errorf("unknown effect %q", a.Effect)
		}
		if a.Path != "" {
			return fmt.Errorf("effect action must not carry a path")
		}
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}

// Outcome is the result of resolving one command string.
type Outcome struct {
	Matched       bool    `json:"matched"`
	MatchedPhrase *string `json:"matched_phrase"`
	Action        *Action `json:"action"`
	Exact         bool    `json:"exact"`
}
