// Package merkle builds and verifies a Merkle tree over audit log entry
// leaves, giving the audit log a periodically computable root and
// inclusion proofs without requiring incremental root maintenance.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

const nodeDomainPrefix = "auzguard:audit:node:v1"

// Tree is a bottom-up binary Merkle tree over a fixed ordered list of leaf
// hashes (odd levels duplicate their last entry, matching the audit log's
// append-ordered leaf sequence).
type Tree struct {
	Leaves []string
	Levels [][]string // Levels[0] == Leaves; Levels[len-1] == [Root]
	Root   string
}

// Build constructs a Tree from leaf hashes in append order. An empty leaf
// set produces a Tree with an empty Root.
func Build(leaves []string) Tree {
	if len(leaves) == 0 {
		return Tree{}
	}

	levels := [][]string{append([]string(nil), leaves...)}
	current := levels[0]
	for len(current) > 1 {
		current = nextLevel(current)
		levels = append(levels, current)
	}

	return Tree{
		Leaves: leaves,
		Levels: levels,
		Root:   current[0],
	}
}

func nextLevel(hashes []string) []string {
	if len(hashes)%2 != 0 {
		hashes = append(append([]string(nil), hashes...), hashes[len(hashes)-1])
	}
	next := make([]string, len(hashes)/2)
	for i := 0; i < len(hashes); i += 2 {
		next[i/2] = NodeHash(hashes[i], hashes[i+1])
	}
	return next
}

// NodeHash combines a left/right hash pair into their parent node hash.
func NodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodeDomainPrefix)
	buf.WriteByte(0)
	buf.Write(hexToBytes(left))
	buf.Write(hexToBytes(right))
	return sha256Hex(buf.Bytes())
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hexToBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
