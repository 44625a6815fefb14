package inspect

import (
	"bytes"
	"strings"
	"testing"
)

func TestCompressorsRoundTrip(t *testing.T) {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if got := strings.Join(registry.Names(), ","); got != "gzip,snappy,zstd" {
		t.Fatalf("unexpected codecs %q", got)
	}
	payload := bytes.Repeat([]byte(`{"tic":1,"ghost":"run","x":12.5}`), 8)
	for _, name := range registry.Names() {
		codec, err := registry.Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", name, err)
		}
		compressed, err := codec.Compress(payload)
		if err != nil {
			t.Fatalf("%s compress: %v", name, err)
		}
		if len(compressed) == 0 || len(compressed) >= len(payload) {
			t.Fatalf("%s: expected repetitive payload to shrink, got %d bytes", name, len(compressed))
		}
		decompressed, err := codec.Decompress(compressed)
		if err != nil {
			t.Fatalf("%s decompress: %v", name, err)
		}
		if !bytes.Equal(decompressed, payload) {
			t.Fatalf("%s round trip mismatch", name)
		}
	}
}

func TestCompressorsRejectEmptyAndGarbage(t *testing.T) {
	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	for _, name := range registry.Names() {
		codec, _ := registry.Lookup(name)
		if _, err := codec.Decompress(nil); err == nil {
			t.Fatalf("%s: expected error for empty payload", name)
		}
		if _, err := codec.Decompress([]byte{0xff, 0xfe, 0xfd, 0xfc, 0xfb}); err == nil {
			t.Fatalf("%s: expected error for garbage payload", name)
		}
	}
	if _, err := registry.Lookup("brotli"); err == nil {
		t.Fatal("expected unknown codec to be rejected")
	}
}
