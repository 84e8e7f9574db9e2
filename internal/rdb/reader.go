// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package rdb

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"strings"
)

// Read decodes a snapshot. It fails with ErrBadMagic, ErrBadOpcode, or
// ErrTruncated; there is no checksum-mismatch error in this codec's
// taxonomy (the trailing 8 bytes are consumed but not verified, matching
// the grounding source).
func Read(r io.Reader) (*File, error) {
	br := bufio.NewReaderSize(r, 32*1024)

	magic, err := readExact(br, 5)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(string(magic), Magic) {
		return nil, ErrBadMagic
	}
	if _, err := readExact(br, 4); err != nil { // version, unvalidated
		return nil, err
	}

	f := &File{Aux: map[string][]byte{}}

	peeked, err := br.Peek(1)
	if err != nil {
		return nil, ErrTruncated
	}
	if peeked[0] == opAux {
		if _, err := br.Discard(1); err != nil {
			return nil, ErrTruncated
		}
		for {
			b, err := br.Peek(1)
			if err != nil {
				return nil, ErrTruncated
			}
			if b[0] == opSelectDB || b[0] == opEOF {
				break
			}
			key, err := readLenStr(br)
			if err != nil {
				return nil, err
			}
			val, err := readLenStr(br)
			if err != nil {
				return nil, err
			}
			f.Aux[string(key)] = val
		}
	}

	for {
		b, err := br.Peek(1)
		if err != nil {
			return nil, ErrTruncated
		}
		if b[0] != opSelectDB {
			break
		}
		if _, err := br.Discard(1); err != nil {
			return nil, ErrTruncated
		}

		idxLen, err := readLength(br)
		if err != nil {
			return nil, err
		}

		opByte, err := readByte(br)
		if err != nil {
			return nil, ErrTruncated
		}
		if opByte != opResizeDB {
			return nil, ErrBadOpcode
		}

		hashSize, err := readLength(br)
		if err != nil {
			return nil, err
		}
		if _, err := readLength(br); err != nil { // expiry count, informational only
			return nil, err
		}

		db := Database{Index: int(idxLen.Length)}
		for i := uint64(0); i < hashSize.Length; i++ {
			kv, err := readRecord(br)
			if err != nil {
				return nil, err
			}
			db.Keys = append(db.Keys, kv)
		}
		f.Databases = append(f.Databases, db)
	}

	opByte, err := readByte(br)
	if err != nil {
		return nil, ErrTruncated
	}
	if opByte != opEOF {
		return nil, ErrBadOpcode
	}
	if _, err := readExact(br, 8); err != nil { // checksum, unvalidated
		return nil, err
	}

	return f, nil
}

func readRecord(br *bufio.Reader) (KeyValue, error) {
	kind, err := readByte(br)
	if err != nil {
		return KeyValue{}, ErrTruncated
	}

	key, err := readLenStr(br)
	if err != nil {
		return KeyValue{}, err
	}

	kv := KeyValue{Key: key, Kind: kind}
	switch kind {
	case KVString:
		val, err := readLenStr(br)
		if err != nil {
			return KeyValue{}, err
		}
		kv.StringValue = val
	case KVList:
		n, err := readLength(br)
		if err != nil {
			return KeyValue{}, err
		}
		for i := uint64(0); i < n.Length; i++ {
			elem, err := readLenStr(br)
			if err != nil {
				return KeyValue{}, err
			}
			kv.ListValue = append(kv.ListValue, elem)
		}
	default:
		return KeyValue{}, ErrBadOpcode
	}

	peeked, err := br.Peek(1)
	if err != nil {
		return KeyValue{}, ErrTruncated
	}
	switch peeked[0] {
	case opExpiry:
		if _, err := br.Discard(1); err != nil {
			return KeyValue{}, ErrTruncated
		}
		buf, err := readExact(br, 4)
		if err != nil {
			return KeyValue{}, err
		}
		kv.ExpireAtUnixMs = int64(binary.LittleEndian.Uint32(buf)) * 1000
	case opExpiryMs:
		if _, err := br.Discard(1); err != nil {
			return KeyValue{}, ErrTruncated
		}
		buf, err := readExact(br, 8)
		if err != nil {
			return KeyValue{}, err
		}
		kv.ExpireAtUnixMs = int64(binary.LittleEndian.Uint64(buf))
	}

	return kv, nil
}

// ReadBytes is a convenience wrapper reading a snapshot from a byte slice,
// used by tests and by the replica's handshake snapshot load.
func ReadBytes(b []byte) (*File, error) {
	return Read(bytes.NewReader(b))
}
