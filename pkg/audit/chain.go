package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TimMatthis/auzguard/pkg/canonicalize"
	"github.com/TimMatthis/auzguard/pkg/merkle"
	"github.com/TimMatthis/auzguard/pkg/policy"
)

// Log is the append-only, hash-chained audit log. The chain tail is
// guarded by a single mutex so appends are strictly linearly ordered;
// readers of already-committed entries never block on it.
type Log struct {
	hashSalt []byte

	mu          sync.Mutex
	entries     []Entry
	byID        map[string]int // id -> index into entries
	chainTail   Entry          // zero value before the first append
	hasAppended bool

	rootMu    sync.Mutex
	rootCache *merkle.Tree
}

// NewLog constructs an empty Log. secret seeds the HASH_SALT derivation;
// it should come from the HASH_SALT environment variable.
func NewLog(secret string) *Log {
	return &Log{
		hashSalt: deriveHashSalt(secret),
		byID:     make(map[string]int),
	}
}

// LogDecision appends a new entry for a policy decision. auditFields
// selects which payload keys are retained (in cleartext) in the stored
// redacted_payload and separately hashed into fields_hashed; every other
// payload key is dropped entirely from the persisted record.
func (l *Log) LogDecision(orgID, ruleID string, effect policy.Effect, actorID string, payload map[string]any, auditFields []string) (Entry, error) {
	redacted, fieldsHashed, err := redact(payload, auditFields)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: redact payload: %w", err)
	}

	payloadHash, err := l.payloadHash(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: hash payload: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().UTC()
	id := uuid.NewString()

	prevPrevHash, prevPayloadHash := zeroHash, zeroHash
	if l.hasAppended {
		prevPrevHash = l.chainTail.PrevHash
		prevPayloadHash = l.chainTail.PayloadHash
	}
	prevHash := chainHash(prevPrevHash, prevPayloadHash, ruleID, string(effect), timestamp)
	leaf := merkleLeaf(id, payloadHash, prevHash)

	entry := Entry{
		ID:              id,
		Timestamp:       timestamp,
		OrgID:           orgID,
		RuleID:          ruleID,
		Effect:          string(effect),
		ActorID:         actorID,
		RedactedPayload: redacted,
		FieldsHashed:    fieldsHashed,
		PayloadHash:     payloadHash,
		PrevHash:        prevHash,
		MerkleLeaf:      leaf,
	}

	l.entries = append(l.entries, entry)
	l.byID[entry.ID] = len(l.entries) - 1
	l.chainTail = entry
	l.hasAppended = true
	l.invalidateRootLocked()

	return entry, nil
}

func (l *Log) payloadHash(payload map[string]any) (string, error) {
	canonical, err := canonicalize.JCS(payload)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(canonical)
	h.Write(l.hashSalt)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func chainHash(prevPrevHash, prevPayloadHash, ruleID, effect string, timestamp time.Time) string {
	h := sha256.New()
	h.Write([]byte(prevPrevHash))
	h.Write([]byte(prevPayloadHash))
	h.Write([]byte(ruleID))
	h.Write([]byte(effect))
	h.Write([]byte(timestamp.Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}

func merkleLeaf(id, payloadHash, prevHash string) string {
	h := sha256.New()
	h.Write([]byte(id))
	h.Write([]byte(payloadHash))
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil))
}

func redact(payload map[string]any, auditFields []string) (map[string]any, map[string]string, error) {
	redacted := make(map[string]any, len(auditFields))
	fieldsHashed := make(map[string]string, len(auditFields))
	for _, field := range auditFields {
		v, ok := payload[field]
		if !ok {
			continue
		}
		redacted[field] = v
		serialized, err := json.Marshal(v)
		if err != nil {
			return nil, nil, err
		}
		fieldsHashed[field] = canonicalize.HashBytes(serialized)
	}
	return redacted, fieldsHashed, nil
}

// ListLogs returns entries matching filter, most-recent-first is not
// assumed; entries are returned in append order and then sliced by
// Offset/Limit.
func (l *Log) ListLogs(filter Filter) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var matched []Entry
	for i := range l.entries {
		e := l.entries[i]
		if filter.matches(&e) {
			matched = append(matched, e)
		}
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched
}

// GetByID returns a single entry, or ErrEntryNotFound.
func (l *Log) GetByID(id string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, ok := l.byID[id]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return l.entries[idx], nil
}

// GetLatestProof recomputes the Merkle root over all leaves (cached until
// the next append) and returns it along with the tree height and index of
// the last entry it covers.
func (l *Log) GetLatestProof() Proof {
	l.mu.Lock()
	leaves := make([]string, len(l.entries))
	for i, e := range l.entries {
		leaves[i] = e.MerkleLeaf
	}
	lastIndex := len(l.entries) - 1
	l.mu.Unlock()

	tree := l.merkleTree(leaves)
	return Proof{
		MerkleRoot: tree.Root,
		Height:     len(tree.Levels),
		LastIndex:  lastIndex,
	}
}

func (l *Log) merkleTree(leaves []string) merkle.Tree {
	l.rootMu.Lock()
	defer l.rootMu.Unlock()
	if l.rootCache != nil {
		return *l.rootCache
	}
	tree := merkle.Build(leaves)
	l.rootCache = &tree
	return tree
}

// invalidateRootLocked must be called with l.mu held.
func (l *Log) invalidateRootLocked() {
	l.rootMu.Lock()
	l.rootCache = nil
	l.rootMu.Unlock()
}

// VerifyIntegrity walks the persisted entries in order, re-deriving each
// prev_hash and merkle_leaf, and reports every index where the stored and
// recomputed values diverge.
func (l *Log) VerifyIntegrity() IntegrityReport {
	l.mu.Lock()
	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)
	l.mu.Unlock()

	report := IntegrityReport{Valid: true}

	prevPrevHash, prevPayloadHash := zeroHash, zeroHash
	for i, e := range entries {
		wantPrevHash := chainHash(prevPrevHash, prevPayloadHash, e.RuleID, e.Effect, e.Timestamp)
		if wantPrevHash != e.PrevHash {
			report.Valid = false
			report.Errors = append(report.Errors, IntegrityError{
				Index:  i,
				Reason: "prev_hash mismatch",
			})
		}

		wantLeaf := merkleLeaf(e.ID, e.PayloadHash, e.PrevHash)
		if wantLeaf != e.MerkleLeaf {
			report.Valid = false
			report.Errors = append(report.Errors, IntegrityError{
				Index:  i,
				Reason: "merkle_leaf mismatch",
			})
		}

		prevPrevHash, prevPayloadHash = e.PrevHash, e.PayloadHash
	}

	return report
}
