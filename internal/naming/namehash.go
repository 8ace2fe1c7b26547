package naming

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Node is an ENS namehash
type Node [32]byte

// Hex returns the 0x-prefixed hex form
func (n Node) Hex() string {
	return "0x" + hex.EncodeToString(n[:])
}

// String implements fmt.Stringer
func (n Node) String() string {
	return n.Hex()
}

// Labelhash returns keccak256(lower(label))
func Labelhash(label string) Node {
	return keccak256([]byte(strings.ToLower(label)))
}

// Namehash computes the ENS namehash of a dotted name.
// The empty name hashes to the zero node.
func Namehash(name string) Node {
	var node Node
	if name == "" {
		return node
	}

	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		lh := Labelhash(labels[i])
		node = keccak256(node[:], lh[:])
	}
	return node
}

// FullName joins a label with its parent domain
func FullName(label, parent string) string {
	return label + "." + parent
}

func keccak256(data ...[]byte) Node {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out Node
	h.Sum(out[:0])
	return out
}
