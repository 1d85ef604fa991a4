package events

import (
	"strings"

	"dineledger/core/types"
	"dineledger/crypto"
)

const (
	// TypeAdminTransferred is emitted when a module changes administrator.
	TypeAdminTransferred = "admin.transferred"
	// TypeModulePaused is emitted when a module is paused.
	TypeModulePaused = "admin.paused"
	// TypeModuleUnpaused is emitted when a module resumes.
	TypeModuleUnpaused = "admin.unpaused"
)

// AdminTransferred captures an administrator hand-over.
type AdminTransferred struct {
	Module   string
	Previous [20]byte
	Next     [20]byte
}

func (AdminTransferred) EventType() string { return TypeAdminTransferred }

func (e AdminTransferred) Event() *types.Event {
	return &types.Event{Type: TypeAdminTransferred, Attributes: map[string]string{
		"module":   strings.TrimSpace(e.Module),
		"previous": crypto.FormatAddress(e.Previous),
		"next":     crypto.FormatAddress(e.Next),
	}}
}

// PauseToggled captures a pause state change for a module.
type PauseToggled struct {
	Module string
	Paused bool
	By     [20]byte
}

func (e PauseToggled) EventType() string {
	if e.Paused {
		return TypeModulePaused
	}
	return TypeModuleUnpaused
}

func (e PauseToggled) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"module": strings.TrimSpace(e.Module),
		"by":     crypto.FormatAddress(e.By),
	}}
}
