package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	bolt "go.etcd.io/bbolt"
	"lukechampine.com/blake3"

	"dineledger/crypto"
)

const idempotencyHeader = "Idempotency-Key"

var (
	bucketIdempotency = []byte("idempotency")

	errIdempotencyConflict = errors.New("idempotency key reused with a different request")
	errIdempotencyInFlight = errors.New("request with this idempotency key is in progress")
)

// IdempotencyRecord stores the response first produced for a key.
type IdempotencyRecord struct {
	Fingerprint string    `json:"fingerprint"`
	Pending     bool      `json:"pending,omitempty"`
	StatusCode  int       `json:"statusCode,omitempty"`
	Body        []byte    `json:"body,omitempty"`
	StoredAt    time.Time `json:"storedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// IdempotencyStore persists responses keyed by caller and Idempotency-Key so
// retried writes replay the original outcome instead of executing twice.
type IdempotencyStore struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

func OpenIdempotencyStore(path string, ttl time.Duration) (*IdempotencyStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIdempotency)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{db: db, ttl: ttl, now: time.Now}, nil
}

// Close releases the underlying Bolt database handle.
func (s *IdempotencyStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// reserve claims key for a request with the given fingerprint. It returns the
// stored record when the key already completed.
func (s *IdempotencyStore) reserve(key []byte, fingerprint string) (*IdempotencyRecord, error) {
	var replay *IdempotencyRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIdempotency)
		now := s.now()
		if raw := bucket.Get(key); raw != nil {
			var existing IdempotencyRecord
			if err := json.Unmarshal(raw, &existing); err != nil {
				return err
			}
			if now.Before(existing.ExpiresAt) {
				if existing.Fingerprint != fingerprint {
					return errIdempotencyConflict
				}
				if existing.Pending {
					return errIdempotencyInFlight
				}
				replay = &existing
				return nil
			}
		}
		pending := IdempotencyRecord{Fingerprint: fingerprint, Pending: true, StoredAt: now, ExpiresAt: now.Add(s.ttl)}
		encoded, err := json.Marshal(pending)
		if err != nil {
			return err
		}
		return bucket.Put(key, encoded)
	})
	return replay, err
}

func (s *IdempotencyStore) complete(key []byte, fingerprint string, status int, body []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		now := s.now()
		record := IdempotencyRecord{
			Fingerprint: fingerprint,
			StatusCode:  status,
			Body:        body,
			StoredAt:    now,
			ExpiresAt:   now.Add(s.ttl),
		}
		encoded, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketIdempotency).Put(key, encoded)
	})
}

func (s *IdempotencyStore) release(key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIdempotency).Delete(key)
	})
}

// Prune removes expired records and returns how many were deleted.
func (s *IdempotencyStore) Prune() (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIdempotency)
		now := s.now()
		var stale [][]byte
		if err := bucket.ForEach(func(k, v []byte) error {
			var record IdempotencyRecord
			if err := json.Unmarshal(v, &record); err != nil || !now.Before(record.ExpiresAt) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

func requestFingerprint(method, path string, body []byte) string {
	h := blake3.New(32, nil)
	_, _ = h.Write([]byte(method))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(path))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

// Middleware replays stored responses for repeated Idempotency-Key headers.
// Requests without the header pass through. Server errors are not stored so
// the client may retry.
func (s *IdempotencyStore) Middleware(maxBody int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idemKey := r.Header.Get(idempotencyHeader)
			caller, authed := callerFrom(r.Context())
			if idemKey == "" || !authed || s == nil {
				next.ServeHTTP(w, r)
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
			if err != nil || int64(len(body)) > maxBody {
				writeAPIError(w, http.StatusRequestEntityTooLarge, codeBadRequest, "request body too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := []byte(crypto.FormatAddress(caller) + "|" + idemKey)
			fingerprint := requestFingerprint(r.Method, r.URL.Path, body)
			replay, err := s.reserve(key, fingerprint)
			if err != nil {
				status, code := statusForError(err)
				writeAPIError(w, status, code, err.Error())
				return
			}
			if replay != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replay", "true")
				w.WriteHeader(replay.StatusCode)
				_, _ = w.Write(replay.Body)
				return
			}

			buffered := &bufferedResponse{header: w.Header()}
			next.ServeHTTP(buffered, r)
			if buffered.status == 0 {
				buffered.status = http.StatusOK
			}
			if buffered.status >= http.StatusInternalServerError {
				_ = s.release(key)
			} else {
				_ = s.complete(key, fingerprint, buffered.status, buffered.body.Bytes())
			}
			w.WriteHeader(buffered.status)
			_, _ = w.Write(buffered.body.Bytes())
		})
	}
}
