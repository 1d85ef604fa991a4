package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"dineledger/storage"
)

var (
	// ErrJournalOpen is returned when Begin is called while an operation is
	// already staging writes.
	ErrJournalOpen = errors.New("state: journal already open")
	// ErrNoJournal is returned by Commit when nothing was begun.
	ErrNoJournal = errors.New("state: no open journal")
)

var sequencePrefix = []byte("seq/")

// Manager stores RLP-encoded records under keccak-hashed keys. Writes made
// between Begin and Commit are staged in a journal and reach the database in
// a single batch; Discard drops them. Outside a journal writes go straight to
// the database, which is only used while seeding state.
//
// Manager is not safe for concurrent use; the node serialises access.
type Manager struct {
	db      storage.Database
	journal *journal
}

type journal struct {
	writes  map[string][]byte
	deletes map[string]struct{}
}

func newJournal() *journal {
	return &journal{
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// NewManager creates a state manager over the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// Begin opens a journal for the next operation.
func (m *Manager) Begin() error {
	if m.journal != nil {
		return ErrJournalOpen
	}
	m.journal = newJournal()
	return nil
}

// InJournal reports whether writes are currently staged.
func (m *Manager) InJournal() bool { return m.journal != nil }

// Commit flushes staged writes atomically and closes the journal.
func (m *Manager) Commit() error {
	if m.journal == nil {
		return ErrNoJournal
	}
	batch := storage.NewBatch()
	for key := range m.journal.deletes {
		batch.Delete([]byte(key))
	}
	for key, value := range m.journal.writes {
		batch.Put([]byte(key), value)
	}
	m.journal = nil
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

// Discard drops every staged write.
func (m *Manager) Discard() { m.journal = nil }

// Pending reports the number of staged writes and deletes.
func (m *Manager) Pending() int {
	if m.journal == nil {
		return 0
	}
	return len(m.journal.writes) + len(m.journal.deletes)
}

func (m *Manager) rawGet(hashed []byte) ([]byte, error) {
	if m.journal != nil {
		if _, gone := m.journal.deletes[string(hashed)]; gone {
			return nil, nil
		}
		if value, ok := m.journal.writes[string(hashed)]; ok {
			return value, nil
		}
	}
	value, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func (m *Manager) rawPut(hashed []byte, value []byte) error {
	if m.journal != nil {
		delete(m.journal.deletes, string(hashed))
		m.journal.writes[string(hashed)] = value
		return nil
	}
	return m.db.Put(hashed, value)
}

func (m *Manager) rawDelete(hashed []byte) error {
	if m.journal != nil {
		delete(m.journal.writes, string(hashed))
		m.journal.deletes[string(hashed)] = struct{}{}
		return nil
	}
	return m.db.Delete(hashed)
}

// KVPut RLP-encodes the value and stores it under the supplied key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.rawPut(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.rawGet(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.rawDelete(kvKey(key))
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	data, err := m.rawGet(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.rawPut(hashed, encoded)
}

// KVGetList decodes the list stored under key into out, which must be a
// pointer to a slice. A missing key yields an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr || val.IsNil() || val.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("kv: destination must be a non-nil pointer to a slice")
	}
	data, err := m.rawGet(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val.Elem().Set(reflect.MakeSlice(val.Elem().Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}

// KVRemove drops value from the byte slice list stored under key.
func (m *Manager) KVRemove(key []byte, value []byte) error {
	var list [][]byte
	if err := m.KVGetList(key, &list); err != nil {
		return err
	}
	filtered := list[:0]
	for _, existing := range list {
		if !bytes.Equal(existing, value) {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) == len(list) {
		return nil
	}
	return m.KVPut(key, filtered)
}

// NextSequence increments the named counter and returns the new value. The
// first call for a name returns 1.
func (m *Manager) NextSequence(name string) (uint64, error) {
	key := append(append([]byte(nil), sequencePrefix...), name...)
	var current uint64
	if _, err := m.KVGet(key, &current); err != nil {
		return 0, err
	}
	current++
	if err := m.KVPut(key, current); err != nil {
		return 0, err
	}
	return current, nil
}

// Sequence returns the current value of the named counter without
// incrementing it.
func (m *Manager) Sequence(name string) (uint64, error) {
	key := append(append([]byte(nil), sequencePrefix...), name...)
	var current uint64
	if _, err := m.KVGet(key, &current); err != nil {
		return 0, err
	}
	return current, nil
}

// EncodeID renders a numeric id as a fixed-width big-endian key segment.
func EncodeID(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return buf[:]
}

// DecodeID reverses EncodeID.
func DecodeID(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}
