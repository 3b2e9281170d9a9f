package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/veil/bridge"
	"github.com/hazyhaar/veil/store"
)

// registerHandlers wires the protocol actions to this session. Flag writes go
// through the store; the page-side effects (re-apply, arm/disarm) follow from
// the resulting change notifications, so a command answered with success is
// also a command every other context will converge on.
func (s *Session) registerHandlers() {
	s.router.Register(bridge.ActionToggleExtension, s.handleToggleExtension)
	s.router.Register(bridge.ActionToggleEditMode, s.handleToggleEditMode)
	s.router.Register(bridge.ActionChangeMode, s.handleChangeMode)
	s.router.Register(bridge.ActionChangeDeleteMode, s.handleChangeMode)
	s.router.Register(bridge.ActionReApply, s.handleReApply)
	s.router.Register(bridge.ActionGetActiveTab, s.handleGetActiveTab)
	s.router.Register(bridge.ActionUpdateState, s.handleUpdateState)
	s.router.Register(bridge.ActionSelectorAdded, s.handleSelectorNotice)
	s.router.Register(bridge.ActionSelectorRemoved, s.handleSelectorNotice)
}

func (s *Session) handleToggleExtension(ctx context.Context, raw json.RawMessage) (any, error) {
	var req bridge.ToggleExtensionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("session: toggleExtension: %w", err)
	}
	if err := s.st.SetFlag(ctx, store.FlagActive, req.Enable); err != nil {
		return nil, err
	}
	return s.st.GetFlags(ctx)
}

func (s *Session) handleToggleEditMode(ctx context.Context, raw json.RawMessage) (any, error) {
	var req bridge.ToggleEditModeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("session: toggleEditMode: %w", err)
	}
	if req.Enable {
		if err := s.st.SetMode(ctx, req.Kind()); err != nil {
			return nil, err
		}
	}
	if err := s.st.SetFlag(ctx, store.FlagEditMode, req.Enable); err != nil {
		return nil, err
	}
	return s.st.GetFlags(ctx)
}

func (s *Session) handleChangeMode(ctx context.Context, raw json.RawMessage) (any, error) {
	var req bridge.ChangeModeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("session: changeMode: %w", err)
	}
	if err := s.st.SetMode(ctx, req.Kind()); err != nil {
		return nil, err
	}
	return s.st.GetFlags(ctx)
}

func (s *Session) handleReApply(ctx context.Context, _ json.RawMessage) (any, error) {
	res, err := s.applicator.ApplyAll(ctx)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Session) handleGetActiveTab(_ context.Context, _ json.RawMessage) (any, error) {
	return bridge.TabInfo{URL: s.URL(), Domain: s.domain}, nil
}

func (s *Session) handleUpdateState(ctx context.Context, raw json.RawMessage) (any, error) {
	var req bridge.StateUpdate
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("session: updateExtensionState: %w", err)
	}

	if err := s.st.SetFlag(ctx, store.FlagActive, req.State.Active); err != nil {
		return nil, err
	}
	if err := s.st.SetMode(ctx, req.State.Kind()); err != nil {
		return nil, err
	}
	// The store corrects contradictory combinations (edit mode without
	// activation) on write.
	if err := s.st.SetFlag(ctx, store.FlagEditMode, req.State.EditMode); err != nil {
		return nil, err
	}
	return s.st.GetFlags(ctx)
}

// handleSelectorNotice answers selectorAdded/selectorRemoved. The store
// notification already triggered a re-apply; doing it again here is harmless
// and covers notices about writes this process never saw.
func (s *Session) handleSelectorNotice(ctx context.Context, raw json.RawMessage) (any, error) {
	var notice bridge.SelectorNotice
	if err := json.Unmarshal(raw, &notice); err != nil {
		return nil, fmt.Errorf("session: selector notice: %w", err)
	}
	if notice.Domain != "" && notice.Domain != s.domain {
		return nil, nil
	}
	if _, err := s.applicator.ApplyAll(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}
