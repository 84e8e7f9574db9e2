// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package rdb

import (
	"bytes"
	"testing"

	"github.com/sandia-minimega/keyd/internal/store"
)

func TestEmptySnapshotRoundTrip(t *testing.T) {
	b := Empty()

	f, err := ReadBytes(b)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if len(f.Databases) != 0 {
		t.Fatalf("want no databases, got %d", len(f.Databases))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	f := &File{
		Aux: map[string][]byte{"redis-ver": []byte("keyd")},
		Databases: []Database{
			{
				Index: 0,
				Keys: []KeyValue{
					{Key: []byte("foo"), Kind: KVString, StringValue: []byte("bar")},
					{Key: []byte("ttl"), Kind: KVString, StringValue: []byte("1"), ExpireAtUnixMs: 1700000000000},
					{Key: []byte("mylist"), Kind: KVList, ListValue: [][]byte{[]byte("a"), []byte("b"), []byte("c")}},
				},
			},
		},
	}

	b, err := WriteBytes(f)
	if err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}

	got, err := ReadBytes(b)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}

	if len(got.Databases) != 1 || len(got.Databases[0].Keys) != 3 {
		t.Fatalf("got %#v", got.Databases)
	}

	// Re-encoding the decoded file must reproduce the same bytes modulo
	// the trailing 8-byte checksum (testable property #7).
	b2, err := WriteBytes(got)
	if err != nil {
		t.Fatalf("WriteBytes (2nd): %v", err)
	}
	if !bytes.Equal(b[:len(b)-8], b2[:len(b2)-8]) {
		t.Fatalf("round trip not byte-equal modulo checksum:\n%x\n%x", b, b2)
	}
}

func TestSnapshotFromStoreLoadInto(t *testing.T) {
	st := store.New()
	if _, _, err := st.Set("greeting", []byte("hello"), store.SetOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.RPush("queue", []byte("a"), []byte("b")); err != nil {
		t.Fatal(err)
	}

	f := FromStore(st)
	b, err := WriteBytes(f)
	if err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}

	got, err := ReadBytes(b)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}

	st2 := store.New()
	LoadInto(got, st2)

	v, ok, err := st2.Get("greeting")
	if err != nil || !ok || string(v) != "hello" {
		t.Fatalf("v=%q ok=%v err=%v", v, ok, err)
	}

	vals, err := st2.LRange("queue", 0, -1)
	if err != nil || len(vals) != 2 || string(vals[0]) != "a" || string(vals[1]) != "b" {
		t.Fatalf("got %v err=%v", vals, err)
	}
}

func TestReadBadMagic(t *testing.T) {
	_, err := ReadBytes([]byte("NOTREDIS0011\xFF"))
	if err != ErrBadMagic {
		t.Fatalf("want ErrBadMagic, got %v", err)
	}
}

func TestReadTruncated(t *testing.T) {
	full := Empty()
	_, err := ReadBytes(full[:len(full)-3])
	if err != ErrTruncated {
		t.Fatalf("want ErrTruncated, got %v", err)
	}
}
