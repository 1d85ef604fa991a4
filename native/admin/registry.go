// Package admin holds the single administrator identity of each native
// module. Engines receive a Registry at construction and ask it to authorise
// privileged calls instead of keeping their own owner field.
package admin

import (
	"errors"
	"fmt"

	"dineledger/core/events"
	"dineledger/core/state"
	"dineledger/crypto"
)

var (
	// ErrUnauthorized is returned when the caller is not the module administrator.
	ErrUnauthorized = errors.New("admin: unauthorized")
	// ErrInvalidAdmin is returned when the zero address is proposed as administrator.
	ErrInvalidAdmin = errors.New("admin: invalid administrator address")
	// ErrNotConfigured is returned when a module has no administrator yet.
	ErrNotConfigured = errors.New("admin: administrator not configured")
)

type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Registry stores one administrator address per module.
type Registry struct {
	state   registryState
	emitter events.Emitter
}

// NewRegistry constructs a registry backed by st.
func NewRegistry(st registryState) *Registry {
	return &Registry{state: st, emitter: events.NoopEmitter{}}
}

// SetEmitter configures where administrator changes are announced.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// Admin returns the administrator of module.
func (r *Registry) Admin(module string) ([20]byte, error) {
	var raw []byte
	ok, err := r.state.KVGet(state.AdminKey(module), &raw)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok || len(raw) != 20 {
		return [20]byte{}, fmt.Errorf("%w: %s", ErrNotConfigured, module)
	}
	var addr [20]byte
	copy(addr[:], raw)
	return addr, nil
}

// Bootstrap assigns the first administrator of module. It is a no-op when an
// administrator already exists so restarts keep on-disk ownership.
func (r *Registry) Bootstrap(module string, addr [20]byte) error {
	if crypto.IsZeroAddress(addr) {
		return ErrInvalidAdmin
	}
	if _, err := r.Admin(module); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotConfigured) {
		return err
	}
	return r.state.KVPut(state.AdminKey(module), addr[:])
}

// Require fails with ErrUnauthorized unless caller administers module.
func (r *Registry) Require(module string, caller [20]byte) error {
	current, err := r.Admin(module)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return fmt.Errorf("%w: %s has no administrator", ErrUnauthorized, module)
		}
		return err
	}
	if current != caller {
		return fmt.Errorf("%w: %s is not the %s administrator", ErrUnauthorized, crypto.FormatAddress(caller), module)
	}
	return nil
}

// TransferAdministration hands module over to next. Only the current
// administrator may call it.
func (r *Registry) TransferAdministration(module string, caller, next [20]byte) error {
	if err := r.Require(module, caller); err != nil {
		return err
	}
	if crypto.IsZeroAddress(next) {
		return ErrInvalidAdmin
	}
	if err := r.state.KVPut(state.AdminKey(module), next[:]); err != nil {
		return err
	}
	r.emitter.Emit(events.AdminTransferred{Module: module, Previous: caller, Next: next})
	return nil
}
