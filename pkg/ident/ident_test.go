package ident_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/treeverse/commitgraph/pkg/ident"
)

type IdentifiableString string

func (i IdentifiableString) Identity() []byte {
	return []byte(i)
}

func TestContentAddress(t *testing.T) {
	data := []struct {
		Input    string
		Expected string
	}{
		{"", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"hello world", "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
	}
	for _, tc := range data {
		got := ident.ContentAddress(IdentifiableString(tc.Input))
		if !strings.EqualFold(got, tc.Expected) {
			t.Fatalf("for input: \"%s\", expected \"%s\", got \"%s\"", tc.Input, tc.Expected, got)
		}
	}
}

func TestHash(t *testing.T) {
	h1, err := ident.Hash(IdentifiableString("hello world"))
	if err != nil {
		t.Fatal("hash:", err)
	}
	h2, err := ident.Hash(IdentifiableString("hello world"))
	if err != nil {
		t.Fatal("hash:", err)
	}
	if !bytes.Equal(h1, h2) {
		t.Fatalf("hash not deterministic: %x != %x", h1, h2)
	}
	if !ident.ValidHash(h1) {
		t.Fatalf("hash %x is not a valid sha2-256 multihash", h1)
	}
	if ident.ValidHash([]byte("junk")) {
		t.Fatal("junk bytes reported as a valid hash")
	}
}

func TestAddressWriter_StringMapOrder(t *testing.T) {
	w1 := ident.NewAddressWriter()
	w1.MarshalStringMap(map[string]string{"a": "1", "b": "2", "c": "3"})
	w2 := ident.NewAddressWriter()
	w2.MarshalStringMap(map[string]string{"c": "3", "a": "1", "b": "2"})
	if !bytes.Equal(w1.Identity(), w2.Identity()) {
		t.Fatal("string map identity depends on iteration order")
	}
}

func TestAddressWriter_LengthPrefix(t *testing.T) {
	w1 := ident.NewAddressWriter()
	w1.MarshalString("ab")
	w1.MarshalString("c")
	w2 := ident.NewAddressWriter()
	w2.MarshalString("a")
	w2.MarshalString("bc")
	if bytes.Equal(w1.Identity(), w2.Identity()) {
		t.Fatal("different string sequences share an identity")
	}
}
