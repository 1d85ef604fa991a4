package common

import (
	"errors"
	"fmt"

	"dineledger/core/state"
)

// ErrModulePaused is returned by mutations of a paused module.
var ErrModulePaused = errors.New("module paused")

// PauseView answers whether a module currently rejects mutations.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused when module is paused. A nil view never
// blocks.
func Guard(view PauseView, module string) error {
	if view == nil || !view.IsPaused(module) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrModulePaused, module)
}

type pauseState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Pauses persists per-module pause flags in state. A flag that cannot be read
// is reported as paused so a storage fault never lets a mutation through.
type Pauses struct {
	state pauseState
}

// NewPauses binds the pause registry to a state backend.
func NewPauses(st pauseState) *Pauses { return &Pauses{state: st} }

// IsPaused implements PauseView.
func (p *Pauses) IsPaused(module string) bool {
	if p == nil || p.state == nil {
		return false
	}
	var paused bool
	if _, err := p.state.KVGet(state.PauseKey(module), &paused); err != nil {
		return true
	}
	return paused
}

// SetPaused stores the flag for module.
func (p *Pauses) SetPaused(module string, paused bool) error {
	if p == nil || p.state == nil {
		return fmt.Errorf("pause: state not configured")
	}
	if module == "" {
		return fmt.Errorf("pause: module required")
	}
	return p.state.KVPut(state.PauseKey(module), paused)
}
