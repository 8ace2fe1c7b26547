package naming

import "testing"

// Vectors from EIP-137
func TestNamehash(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"", "0x0000000000000000000000000000000000000000000000000000000000000000"},
		{"eth", "0x93cdeb708b7545dc668eb9280176169d1c33cfd8ed6f04690a0bcc88a93fc4ae"},
		{"foo.eth", "0xde9b09fd7c5f901e23a3f19fecc54828e9c848539801e86591bd9801b019f84f"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Namehash(tt.name).Hex(); got != tt.want {
				t.Errorf("Namehash(%q) = %s, want %s", tt.name, got, tt.want)
			}
		})
	}
}

func TestLabelhash(t *testing.T) {
	want := "0x4f5b812789fc606be1b3b16908db13fc7a9adf7ca72641f84d75b47069d3d7f0"
	if got := Labelhash("eth").Hex(); got != want {
		t.Errorf("Labelhash(eth) = %s, want %s", got, want)
	}
	if Labelhash("ETH") != Labelhash("eth") {
		t.Error("labelhash must be case-insensitive")
	}
}

func TestFullName(t *testing.T) {
	if got := FullName(testBase, "colancer.eth"); got != "user123456abcdef.colancer.eth" {
		t.Errorf("unexpected full name %q", got)
	}
}
