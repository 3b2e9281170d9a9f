package bridge

import "github.com/hazyhaar/veil/store"

// Protocol actions. selectorAdded and selectorRemoved are reverse
// notifications: the sender does not inspect the answer, but the router
// still produces one.
const (
	ActionPing             = "ping"
	ActionToggleExtension  = "toggleExtension"
	ActionToggleEditMode   = "toggleEditMode"
	ActionChangeMode       = "changeMode"
	ActionChangeDeleteMode = "changeDeleteMode"
	ActionReApply          = "reApply"
	ActionSelectorAdded    = "selectorAdded"
	ActionSelectorRemoved  = "selectorRemoved"
	ActionGetActiveTab     = "getActiveTab"
	ActionUpdateState      = "updateExtensionState"
)

// ToggleExtensionRequest flips the master activation flag.
type ToggleExtensionRequest struct {
	Enable bool `json:"enable"`
}

// ToggleEditModeRequest arms or disarms selection mode. The optional mode
// fields select the modification kind on arm; both absent means blur.
type ToggleEditModeRequest struct {
	Enable       bool  `json:"enable"`
	DeleteMode   *bool `json:"deleteMode,omitempty"`
	EditTextMode *bool `json:"editTextMode,omitempty"`
}

// Kind resolves the requested modification kind. Text wins over delete when
// both are set, matching the flag precedence of the store.
func (r ToggleEditModeRequest) Kind() store.Kind {
	switch {
	case r.EditTextMode != nil && *r.EditTextMode:
		return store.KindText
	case r.DeleteMode != nil && *r.DeleteMode:
		return store.KindHide
	default:
		return store.KindBlur
	}
}

// ChangeModeRequest switches the active modification kind without toggling
// selection mode itself.
type ChangeModeRequest struct {
	DeleteMode   bool  `json:"deleteMode"`
	EditTextMode *bool `json:"editTextMode,omitempty"`
}

// Kind resolves the requested modification kind.
func (r ChangeModeRequest) Kind() store.Kind {
	switch {
	case r.EditTextMode != nil && *r.EditTextMode:
		return store.KindText
	case r.DeleteMode:
		return store.KindHide
	default:
		return store.KindBlur
	}
}

// SelectorNotice announces a record added or removed by direct page
// interaction, so an open listing view can refresh without polling.
type SelectorNotice struct {
	Domain   string     `json:"domain"`
	Selector string     `json:"selector"`
	Type     store.Kind `json:"type"`
}

// TabInfo answers getActiveTab.
type TabInfo struct {
	URL    string `json:"url"`
	Domain string `json:"domain"`
}

// StateUpdate carries the full flag state for updateExtensionState.
type StateUpdate struct {
	State store.Flags `json:"state"`
}
