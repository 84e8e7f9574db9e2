// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package resp implements the wire codec: a small set of tagged frames
// over a byte stream, plus the one-shot snapshot-blob mode used by the
// replica handshake.
package resp

import "fmt"

// Kind tags a Value the way the first byte of a frame does.
type Kind byte

const (
	KindSimpleString Kind = '+'
	KindError        Kind = '-'
	KindInteger      Kind = ':'
	KindBulkString   Kind = '$'
	KindArray        Kind = '*'
)

// Value is one decoded (or to-be-encoded) frame. Only the fields that
// apply to Kind are meaningful; see the constructors below.
type Value struct {
	Kind Kind

	Str   string  // SimpleString, Error
	Int   int64   // Integer
	Bulk  []byte  // BulkString; nil means "missing" ($-1)
	Array []Value // Array; nil Array with Null set means "missing" (*-1)

	// Null distinguishes an empty Bulk/Array ([]byte{}, []Value{}) from a
	// missing one (Bulk == nil or Array == nil but Null == true matters
	// only for Array, since a nil Bulk is unambiguous already).
	Null bool
}

func SimpleString(s string) Value { return Value{Kind: KindSimpleString, Str: s} }
func Error(s string) Value        { return Value{Kind: KindError, Str: s} }
func Integer(n int64) Value       { return Value{Kind: KindInteger, Int: n} }

func BulkString(b []byte) Value {
	if b == nil {
		return Value{Kind: KindBulkString, Bulk: []byte{}}
	}
	return Value{Kind: KindBulkString, Bulk: b}
}

func BulkStringFromString(s string) Value {
	return Value{Kind: KindBulkString, Bulk: []byte(s)}
}

// NullBulkString is the "$-1\r\n" missing bulk string.
func NullBulkString() Value {
	return Value{Kind: KindBulkString, Bulk: nil}
}

func Array(vs []Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{Kind: KindArray, Array: vs}
}

// NullArray is the "*-1\r\n" missing array.
func NullArray() Value {
	return Value{Kind: KindArray, Array: nil, Null: true}
}

func (v Value) IsNull() bool {
	switch v.Kind {
	case KindBulkString:
		return v.Bulk == nil
	case KindArray:
		return v.Array == nil && v.Null
	}
	return false
}

func (v Value) String() string {
	switch v.Kind {
	case KindSimpleString:
		return "+" + v.Str
	case KindError:
		return "-" + v.Str
	case KindInteger:
		return fmt.Sprintf(":%d", v.Int)
	case KindBulkString:
		if v.IsNull() {
			return "$-1"
		}
		return fmt.Sprintf("$%d:%s", len(v.Bulk), v.Bulk)
	case KindArray:
		if v.IsNull() {
			return "*-1"
		}
		return fmt.Sprintf("*%d", len(v.Array))
	}
	return "?"
}
