// Package store implements the content-addressed persistent result table
// (spec.md §4.5): an embedded SQL-like database file fronted by an in-memory
// materialisation layer so a get issued right after a put in the same
// process always observes the value, even before the async writer has
// flushed it to disk.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	_ "modernc.org/sqlite"

	"github.com/voxlogica-go/voxlogica/internal/contract"
	"github.com/voxlogica-go/voxlogica/internal/ir"
	"github.com/voxlogica-go/voxlogica/internal/pod"
)

// ResultRecord is one persisted (or pending) result, spec.md §3.
type ResultRecord struct {
	NodeId      ir.NodeId
	VoxType     pod.VoxType
	PayloadJSON map[string]any
	PayloadBin  []byte
	Metadata    map[string]any
	CreatedAt   time.Time
}

// ConflictingContentError reports two puts for the same NodeId whose
// canonical encodings differ — under correct hashing this should be
// impossible and indicates a hash collision or a codec version drift
// (spec.md §7).
type ConflictingContentError struct {
	NodeId ir.NodeId
}

func (e *ConflictingContentError) Error() string {
	return fmt.Sprintf("voxlogica: conflicting content for node %s (two puts disagree on encoding)", e.NodeId)
}

type memRecord struct {
	record    ResultRecord
	canonical []byte // canonical CBOR of the envelope, used for the ConflictingContent check
	persisted bool
}

type writeJob struct {
	nodeId    ir.NodeId
	record    ResultRecord
	canonical []byte
}

// Store is the public result store. The zero value is not usable; construct
// with Open.
type Store struct {
	db *sql.DB

	mu  sync.RWMutex
	mem map[ir.NodeId]*memRecord

	jobs    chan writeJob
	pending sync.WaitGroup
	done    chan struct{}
	once    sync.Once
}

// Open opens (creating if necessary) the sqlite database file at path and
// starts the async write-behind worker. path may be ":memory:" for a
// process-local, non-persistent store (tests, REPL scratch sessions).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("voxlogica: opening store %s: %w", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS results (
		node_id TEXT PRIMARY KEY,
		vox_type TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		payload_bin BLOB,
		metadata_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("voxlogica: creating results table: %w", err)
	}

	s := &Store{
		db:   db,
		mem:  make(map[ir.NodeId]*memRecord),
		jobs: make(chan writeJob, 256),
		done: make(chan struct{}),
	}
	go s.writeLoop()
	return s, nil
}

func (s *Store) writeLoop() {
	for {
		select {
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			s.persist(job)
			s.pending.Done()
		case <-s.done:
			// Drain remaining queued jobs before exiting so Close's flush
			// observes every put issued before it was called.
			for {
				select {
				case job, ok := <-s.jobs:
					if !ok {
						return
					}
					s.persist(job)
					s.pending.Done()
				default:
					return
				}
			}
		}
	}
}

func (s *Store) persist(job writeJob) {
	payloadJSON, err := json.Marshal(job.record.PayloadJSON)
	contract.ExpectNoError(err, "re-marshaling an already-validated payload_json")
	metadataJSON, err := json.Marshal(job.record.Metadata)
	contract.ExpectNoError(err, "re-marshaling an already-validated metadata")

	_, err = s.db.Exec(
		`INSERT OR IGNORE INTO results (node_id, vox_type, payload_json, payload_bin, metadata_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		job.nodeId, string(job.record.VoxType), string(payloadJSON), job.record.PayloadBin, string(metadataJSON),
		job.record.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		// spec.md §7: StoreError is logged, not fatal; the in-memory value
		// remains usable for the rest of the process.
		fmt.Printf("voxlogica: store: failed to persist %s: %v\n", job.nodeId, err)
		return
	}

	s.mu.Lock()
	if rec, ok := s.mem[job.nodeId]; ok {
		rec.persisted = true
		rec.record.Metadata["persisted"] = true
	}
	s.mu.Unlock()
}

// Has reports whether node_id has a result, in memory or persisted.
func (s *Store) Has(nodeId ir.NodeId) (bool, error) {
	s.mu.RLock()
	_, ok := s.mem[nodeId]
	s.mu.RUnlock()
	if ok {
		return true, nil
	}
	var count int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM results WHERE node_id = ?`, nodeId).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("voxlogica: store: has(%s): %w", nodeId, err)
	}
	return count > 0, nil
}

// Get returns the result for node_id, preferring the in-memory layer
// (read-your-writes) over a persistent-store lookup.
func (s *Store) Get(nodeId ir.NodeId) (ResultRecord, bool, error) {
	s.mu.RLock()
	rec, ok := s.mem[nodeId]
	s.mu.RUnlock()
	if ok {
		return rec.record, true, nil
	}

	var voxType, payloadJSON, metadataJSON, createdAt string
	var payloadBin []byte
	err := s.db.QueryRow(
		`SELECT vox_type, payload_json, payload_bin, metadata_json, created_at FROM results WHERE node_id = ?`,
		nodeId,
	).Scan(&voxType, &payloadJSON, &payloadBin, &metadataJSON, &createdAt)
	if err == sql.ErrNoRows {
		return ResultRecord{}, false, nil
	}
	if err != nil {
		return ResultRecord{}, false, fmt.Errorf("voxlogica: store: get(%s): %w", nodeId, err)
	}

	var pj, md map[string]any
	if err := json.Unmarshal([]byte(payloadJSON), &pj); err != nil {
		return ResultRecord{}, false, fmt.Errorf("voxlogica: store: decoding payload_json for %s: %w", nodeId, err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &md); err != nil {
		return ResultRecord{}, false, fmt.Errorf("voxlogica: store: decoding metadata_json for %s: %w", nodeId, err)
	}
	created, _ := time.Parse(time.RFC3339Nano, createdAt)

	return ResultRecord{
		NodeId:      nodeId,
		VoxType:     pod.VoxType(voxType),
		PayloadJSON: pj,
		PayloadBin:  payloadBin,
		Metadata:    md,
		CreatedAt:   created,
	}, true, nil
}

// Put encodes value as a voxpod/1 envelope and enqueues it for persistence,
// returning immediately. A second Put for the same node_id is idempotent if
// its encoding agrees byte-for-byte with the first (spec.md §4.5); otherwise
// it fails with ConflictingContentError and the original record is kept.
func (s *Store) Put(nodeId ir.NodeId, value any, metadata map[string]any) error {
	env, err := pod.Encode(value)
	if err != nil {
		return fmt.Errorf("voxlogica: store: encoding value for %s: %w", nodeId, err)
	}
	canonical, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		contract.Invariant(false, "cbor canonical encoding mode must always construct: %v", err)
	}
	encoded, err := canonical.Marshal(env)
	if err != nil {
		return fmt.Errorf("voxlogica: store: canonical-encoding envelope for %s: %w", nodeId, err)
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["persisted"] = "pending"

	s.mu.Lock()
	if existing, ok := s.mem[nodeId]; ok {
		s.mu.Unlock()
		if bytesEqual(existing.canonical, encoded) {
			return nil
		}
		return &ConflictingContentError{NodeId: nodeId}
	}

	record := ResultRecord{
		NodeId:      nodeId,
		VoxType:     env.VoxType,
		PayloadJSON: env.PayloadJSON,
		PayloadBin:  env.PayloadBin,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	}
	s.mem[nodeId] = &memRecord{record: record, canonical: encoded}
	s.mu.Unlock()

	s.pending.Add(1)
	select {
	case s.jobs <- writeJob{nodeId: nodeId, record: record, canonical: encoded}:
	case <-s.done:
		s.pending.Done()
	}
	return nil
}

// Flush blocks until every enqueued write has been attempted, or timeout
// elapses, returning whether it drained in time (spec.md §4.5).
func (s *Store) Flush(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close flushes outstanding writes (best-effort, generous timeout) and stops
// the writer goroutine.
func (s *Store) Close() error {
	s.Flush(30 * time.Second)
	s.once.Do(func() { close(s.done) })
	return s.db.Close()
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
