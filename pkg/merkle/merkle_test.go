package merkle

import "testing"

func sha256HexOf(s string) string {
	return sha256Hex([]byte(s))
}

func TestBuildTreeOddLeafCountDuplicatesLast(t *testing.T) {
	h1, h2, h3 := sha256HexOf("a"), sha256HexOf("b"), sha256HexOf("c")

	tree := Build([]string{h1, h2, h3})
	if tree.Root == "" {
		t.Fatal("expected non-empty root")
	}
	if len(tree.Leaves) != 3 {
		t.Fatalf("expected 3 leaves, got %d", len(tree.Leaves))
	}

	n1 := NodeHash(h1, h2)
	n2 := NodeHash(h3, h3) // duplicated last leaf
	want := NodeHash(n1, n2)

	if tree.Root != want {
		t.Fatalf("root mismatch: got %s want %s", tree.Root, want)
	}
}

func TestBuildEmptyTree(t *testing.T) {
	tree := Build(nil)
	if tree.Root != "" {
		t.Fatalf("expected empty root for empty tree, got %s", tree.Root)
	}
}

func TestProveAndVerifyInclusion(t *testing.T) {
	leaves := []string{sha256HexOf("a"), sha256HexOf("b"), sha256HexOf("c"), sha256HexOf("d")}
	tree := Build(leaves)

	for i := range leaves {
		proof, ok := Prove(tree, i)
		if !ok {
			t.Fatalf("expected proof for index %d", i)
		}
		if !VerifyInclusionProof(proof, tree.Root) {
			t.Fatalf("expected valid inclusion proof for index %d", i)
		}
	}
}

func TestVerifyInclusionProofRejectsTamperedLeaf(t *testing.T) {
	leaves := []string{sha256HexOf("a"), sha256HexOf("b"), sha256HexOf("c")}
	tree := Build(leaves)

	proof, ok := Prove(tree, 2)
	if !ok {
		t.Fatal("expected proof")
	}
	proof.LeafHash = sha256HexOf("tampered")

	if VerifyInclusionProof(proof, tree.Root) {
		t.Fatal("expected tampered proof to fail verification")
	}
}

func TestProveOutOfRange(t *testing.T) {
	tree := Build([]string{sha256HexOf("a")})
	if _, ok := Prove(tree, 5); ok {
		t.Fatal("expected Prove to fail for out-of-range index")
	}
}
