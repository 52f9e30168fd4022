//go:build property
// +build property

package merkle_test

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/TimMatthis/auzguard/pkg/merkle"
)

func leafHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// TestBuildDeterministic encodes invariant 2 at the Merkle layer: building
// a tree twice from the same leaf sequence yields the same root.
func TestBuildDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("building the same leaf sequence twice yields the same root", prop.ForAll(
		func(entries []string) bool {
			leaves := make([]string, len(entries))
			for i, e := range entries {
				leaves[i] = leafHash(e)
			}
			t1 := merkle.Build(leaves)
			t2 := merkle.Build(leaves)
			return t1.Root == t2.Root
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestInclusionProofVerifies encodes invariant 6's supporting guarantee:
// every leaf in a built tree has a valid inclusion proof against that
// tree's root.
func TestInclusionProofVerifies(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("every leaf has a verifiable inclusion proof", prop.ForAll(
		func(entries []string, pick int) bool {
			if len(entries) == 0 {
				return true
			}
			leaves := make([]string, len(entries))
			for i, e := range entries {
				leaves[i] = leafHash(fmt.Sprintf("%d:%s", i, e))
			}
			tree := merkle.Build(leaves)
			idx := pick % len(leaves)
			if idx < 0 {
				idx += len(leaves)
			}
			proof, ok := merkle.Prove(tree, idx)
			if !ok {
				return false
			}
			return merkle.VerifyInclusionProof(proof, tree.Root)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

// TestInclusionProofRejectsWrongRoot encodes tamper detection: a proof
// checked against a root it was not built for must fail.
func TestInclusionProofRejectsWrongRoot(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("a proof does not verify against an unrelated root", prop.ForAll(
		func(entries []string) bool {
			if len(entries) < 2 {
				return true
			}
			leaves := make([]string, len(entries))
			for i, e := range entries {
				leaves[i] = leafHash(fmt.Sprintf("%d:%s", i, e))
			}
			tree := merkle.Build(leaves)
			proof, ok := merkle.Prove(tree, 0)
			if !ok {
				return false
			}
			forged := leafHash("forged-root-seed")
			if forged == tree.Root {
				return true
			}
			return !merkle.VerifyInclusionProof(proof, forged)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
