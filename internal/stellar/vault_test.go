package stellar

import "testing"

func TestVaultRoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")
	vault := NewVault(key)

	sealed, err := vault.Seal("SCRTSEED")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if sealed == "SCRTSEED" {
		t.Fatal("sealed output equals plaintext")
	}

	opened, err := vault.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened != "SCRTSEED" {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestVaultRejectsWrongKey(t *testing.T) {
	var key, other [32]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")
	copy(other[:], "fedcba9876543210fedcba9876543210")

	sealed, err := NewVault(key).Seal("SCRTSEED")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := NewVault(other).Open(sealed); err == nil {
		t.Fatal("opened with the wrong key")
	}
}

func TestVaultRejectsGarbage(t *testing.T) {
	var key [32]byte
	vault := NewVault(key)
	for _, sealed := range []string{"", "!!!", "aGVsbG8="} {
		if _, err := vault.Open(sealed); err == nil {
			t.Fatalf("opened garbage %q", sealed)
		}
	}
}
