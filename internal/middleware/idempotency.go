package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/forgo/hiretrack/api/internal/model"
)

// IdempotencyHeader is the request header carrying a client retry key
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader marks a response served from the idempotency cache
const ReplayedHeader = "Idempotent-Replayed"

const maxIdempotencyKeyLen = 128

// DefaultMaxIdempotentBody bounds the request body buffered for fingerprinting
const DefaultMaxIdempotentBody int64 = 1 << 20

// replayedHeaders are the response headers handlers set. Everything else
// belongs to the outer middleware of the replaying request.
var replayedHeaders = []string{"Content-Type", "Location"}

// IdempotencyStore remembers responses to keyed POST and PATCH requests so a
// client that retries an apply or a stage move gets the original answer
// instead of a conflict.
type IdempotencyStore struct {
	mu       sync.Mutex
	entries  map[string]*replayEntry
	ttl      time.Duration
	maxBody  int64
	stopOnce sync.Once
	stop     chan struct{}
}

type replayEntry struct {
	status    int
	headers   http.Header
	body      []byte
	expiresAt time.Time
	done      chan struct{} // closed once the first request finishes
}

// IdempotencyConfig holds configuration for the idempotency store
type IdempotencyConfig struct {
	TTL     time.Duration // How long a response is replayed (default 24h)
	Cleanup time.Duration // Sweep interval for expired entries (default 1h)
	MaxBody int64         // Largest keyed request body accepted (default 1 MiB)
}

// NewIdempotencyStore creates a store and starts its sweeper
func NewIdempotencyStore(cfg IdempotencyConfig) *IdempotencyStore {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Cleanup <= 0 {
		cfg.Cleanup = time.Hour
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = DefaultMaxIdempotentBody
	}

	s := &IdempotencyStore{
		entries: make(map[string]*replayEntry),
		ttl:     cfg.TTL,
		maxBody: cfg.MaxBody,
		stop:    make(chan struct{}),
	}
	go s.sweepLoop(cfg.Cleanup)
	return s
}

// Stop ends the sweeper. It is safe to call more than once.
func (s *IdempotencyStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *IdempotencyStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.sweep(now)
		case <-s.stop:
			return
		}
	}
}

func (s *IdempotencyStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if e.finished() && e.expiresAt.Before(now) {
			delete(s.entries, key)
		}
	}
}

func (e *replayEntry) finished() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// claim returns the live entry for key and whether the caller owns it. A
// non-owner must wait on entry.done before replaying.
func (s *IdempotencyStore) claim(key string, now time.Time) (*replayEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && (!e.finished() || e.expiresAt.After(now)) {
		return e, false
	}
	e := &replayEntry{done: make(chan struct{})}
	s.entries[key] = e
	return e, true
}

// settle records the owner's response. Server errors are forgotten so the
// next retry runs the handler again.
func (s *IdempotencyStore) settle(key string, e *replayEntry, rec *replayRecorder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.status >= http.StatusInternalServerError {
		if s.entries[key] == e {
			delete(s.entries, key)
		}
	} else {
		e.status = rec.status
		e.headers = make(http.Header)
		for _, name := range replayedHeaders {
			if v := rec.Header().Values(name); len(v) > 0 {
				e.headers[name] = append([]string(nil), v...)
			}
		}
		e.body = bytes.Clone(rec.body.Bytes())
		e.expiresAt = time.Now().Add(s.ttl)
	}
	close(e.done)
}

// serve runs the handler for the owning request. A panic settles the entry
// as a server error before it propagates.
func (s *IdempotencyStore) serve(key string, e *replayEntry, next http.Handler, w http.ResponseWriter, r *http.Request) {
	rec := &replayRecorder{ResponseWriter: w, status: http.StatusOK}
	settled := false
	defer func() {
		if !settled {
			rec.status = http.StatusInternalServerError
			s.settle(key, e, rec)
		}
	}()
	next.ServeHTTP(rec, r)
	s.settle(key, e, rec)
	settled = true
}

// fingerprint binds a key to the caller and the exact request it first
// arrived with
func fingerprint(userID, key, method, path string, body []byte) string {
	h := sha256.New()
	for _, part := range [][]byte{[]byte(userID), []byte(key), []byte(method), []byte(path), body} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// replayRecorder tees the response to the client and a buffer
type replayRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *replayRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *replayRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func replay(w http.ResponseWriter, e *replayEntry) {
	for k, v := range e.headers {
		w.Header()[k] = v
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(e.status)
	_, _ = w.Write(e.body)
}

// Idempotency replays the first response to a POST or PATCH carrying an
// Idempotency-Key. Mount it after Auth so keys are scoped per user. A nil
// store disables it.
func Idempotency(store *IdempotencyStore) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || (r.Method != http.MethodPost && r.Method != http.MethodPatch) {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get(IdempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLen {
				model.NewBadRequestError("Idempotency-Key is too long").WriteJSON(w)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, store.maxBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					model.NewPayloadTooLargeError(tooLarge.Limit).WriteJSON(w)
					return
				}
				model.NewBadRequestError("unreadable request body").WriteJSON(w)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			userID := GetUserID(r.Context())
			if userID == "" {
				userID = "ip:" + ClientIP(r)
			}
			fp := fingerprint(userID, key, r.Method, r.URL.Path, body)

			for {
				entry, owner := store.claim(fp, time.Now())
				if owner {
					store.serve(fp, entry, next, w, r)
					return
				}

				select {
				case <-entry.done:
				case <-r.Context().Done():
					return
				}
				// the first attempt failed server-side and was forgotten
				if entry.status == 0 {
					continue
				}
				replay(w, entry)
				return
			}
		})
	}
}
