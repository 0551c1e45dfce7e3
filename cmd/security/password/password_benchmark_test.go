package password

import "testing"

func BenchmarkHash_DefaultConfig(b *testing.B) {
	h, err := NewHasher(DefaultConfig())
	if err != nil {
		b.Fatalf("NewHasher: %v", err)
	}
	pw := "this is a strong password 123!"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := h.Hash(pw); err != nil {
			b.Fatalf("Hash error: %v", err)
		}
	}
}

func BenchmarkCompare_DefaultConfig(b *testing.B) {
	h, err := NewHasher(DefaultConfig())
	if err != nil {
		b.Fatalf("NewHasher: %v", err)
	}
	pw := "this is a strong password 123!"
	enc, err := h.Hash(pw)
	if err != nil {
		b.Fatalf("Hash error: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !h.Compare(pw, enc) {
			b.Fatalf("Compare failed")
		}
	}
}
