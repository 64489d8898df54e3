package crypto

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

// TestCrypto_SealOpen_Roundtrip tests that opening a sealed value returns
// the original plaintext.
func TestCrypto_SealOpen_Roundtrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.SliceOfN(rapid.Byte(), KeySize, KeySize).Draw(t, "key")
		plaintext := rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(t, "plaintext")

		sealed, err := Seal(key, plaintext)
		if err != nil {
			t.Fatalf("Seal failed: %v", err)
		}
		if len(sealed) != NonceSize+len(plaintext)+tagSize {
			t.Fatalf("sealed length = %d, want %d", len(sealed), NonceSize+len(plaintext)+tagSize)
		}

		opened, err := Open(key, sealed)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if !bytes.Equal(plaintext, opened) {
			t.Fatalf("roundtrip failed: got %x, want %x", opened, plaintext)
		}
	})
}

// TestCrypto_DeriveKey_Deterministic tests that DeriveKey is a pure function.
func TestCrypto_DeriveKey_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		masterKey := rapid.SliceOfN(rapid.Byte(), 16, 64).Draw(t, "masterKey")
		purpose := rapid.String().Draw(t, "purpose")
		version := rapid.IntRange(1, 1000).Draw(t, "version")

		k1 := DeriveKey(masterKey, purpose, version)
		k2 := DeriveKey(masterKey, purpose, version)
		if !bytes.Equal(k1, k2) {
			t.Fatalf("derivation not deterministic: %x != %x", k1, k2)
		}
		if len(k1) != KeySize {
			t.Fatalf("key length = %d, want %d", len(k1), KeySize)
		}
	})
}

// TestCrypto_DeriveKey_PurposesSeparated tests domain separation between
// the database and audio keys.
func TestCrypto_DeriveKey_PurposesSeparated(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		masterKey := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "masterKey")
		version := rapid.IntRange(1, 1000).Draw(t, "version")

		db := DeriveKey(masterKey, PurposeDatabase, version)
		audio := DeriveKey(masterKey, PurposeAudio, version)
		next := DeriveKey(masterKey, PurposeAudio, version+1)
		if bytes.Equal(db, audio) || bytes.Equal(audio, next) {
			t.Fatalf("keys collide across purpose or version")
		}
	})
}

func TestCrypto_Seal_NonDeterministic(t *testing.T) {
	key := make([]byte, KeySize)
	a, err := Seal(key, []byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Seal(key, []byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("two seals of the same plaintext are identical")
	}
}

func TestCrypto_Open_WrongKeyFails(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		k1 := rapid.SliceOfN(rapid.Byte(), KeySize, KeySize).Draw(t, "k1")
		k2 := rapid.SliceOfN(rapid.Byte(), KeySize, KeySize).Filter(func(k []byte) bool {
			return !bytes.Equal(k, k1)
		}).Draw(t, "k2")

		sealed, err := Seal(k1, []byte("audio"))
		if err != nil {
			t.Fatalf("Seal failed: %v", err)
		}
		if _, err := Open(k2, sealed); err == nil {
			t.Fatal("Open with wrong key succeeded")
		}
	})
}

func TestCrypto_Open_TamperedFails(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.SliceOfN(rapid.Byte(), KeySize, KeySize).Draw(t, "key")
		sealed, err := Seal(key, []byte("some speech bytes"))
		if err != nil {
			t.Fatalf("Seal failed: %v", err)
		}
		pos := rapid.IntRange(0, len(sealed)-1).Draw(t, "pos")
		sealed[pos] ^= 0x01
		if _, err := Open(key, sealed); err == nil {
			t.Fatal("Open of tampered value succeeded")
		}
	})
}

func TestCrypto_InvalidInputs(t *testing.T) {
	if _, err := Seal(make([]byte, 16), []byte("x")); err == nil {
		t.Error("Seal accepted a 16-byte key")
	}
	if _, err := Open(make([]byte, KeySize), make([]byte, NonceSize+tagSize-1)); err == nil {
		t.Error("Open accepted a truncated value")
	}
}
