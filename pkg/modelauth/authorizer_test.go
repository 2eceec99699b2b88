// Copyright 2025 Certen Protocol

package modelauth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveUnknownModelReturnsSentinel(t *testing.T) {
	a := &Authorizer{models: map[string]*ModelEntry{}}
	_, err := a.Resolve("missing.gguf")
	if !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("got %v, want ErrUnknownModel", err)
	}
}

func TestAuthorizeRejectsMismatchedJobModelID(t *testing.T) {
	entry := &ModelEntry{Filename: "llama.gguf", ModelID: [32]byte{1}}
	a := &Authorizer{models: map[string]*ModelEntry{"llama.gguf": entry}}

	if err := a.Authorize("llama.gguf", [32]byte{1}); err != nil {
		t.Fatalf("expected match to succeed, got %v", err)
	}
	err := a.Authorize("llama.gguf", [32]byte{2})
	if !errors.Is(err, ErrUnauthorizedJobClaim) {
		t.Fatalf("got %v, want ErrUnauthorizedJobClaim", err)
	}
}

func TestSHA256FileMatchesKnownDigest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.bin")
	if err := os.WriteFile(path, []byte("hello world"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := sha256File(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if gotHex := hexEncode(got); gotHex != want {
		t.Fatalf("got %s, want %s", gotHex, want)
	}
}

func hexEncode(b [32]byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 64)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}

func TestModelFilesListsDirectoryEntries(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.gguf", "b.gguf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	files, err := modelFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
}

func TestModelFilesSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "single.gguf")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	files, err := modelFiles(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != path {
		t.Fatalf("got %v, want [%s]", files, path)
	}
}
