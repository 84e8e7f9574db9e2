// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package rdb

import (
	"bufio"
	"encoding/binary"
	"io"
	"strconv"
)

// lengthOrInt is the decoded result of the 4-mode length prefix: either a
// plain byte count, or (mode 11, "special string") a packed integer that a
// reader expands back to its ASCII decimal representation.
type lengthOrInt struct {
	Length uint64
	IsInt  bool
	Int    int64
}

func readByte(r *bufio.Reader) (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, io.ErrUnexpectedEOF
	}
	return b, nil
}

func readExact(r *bufio.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, ErrTruncated
	}
	return buf, nil
}

// readLength decodes the high-two-bits-selected length prefix.
func readLength(r *bufio.Reader) (lengthOrInt, error) {
	first, err := readByte(r)
	if err != nil {
		return lengthOrInt{}, ErrTruncated
	}

	switch first >> 6 {
	case 0b00:
		return lengthOrInt{Length: uint64(first & 0x3F)}, nil

	case 0b01:
		second, err := readByte(r)
		if err != nil {
			return lengthOrInt{}, ErrTruncated
		}
		n := (uint64(first&0x3F) << 8) | uint64(second)
		return lengthOrInt{Length: n}, nil

	case 0b10:
		buf, err := readExact(r, 4)
		if err != nil {
			return lengthOrInt{}, err
		}
		return lengthOrInt{Length: uint64(binary.BigEndian.Uint32(buf))}, nil

	default: // 0b11, special string
		switch first & 0x3F {
		case 0:
			b, err := readByte(r)
			if err != nil {
				return lengthOrInt{}, ErrTruncated
			}
			return lengthOrInt{IsInt: true, Int: int64(int8(b))}, nil
		case 1:
			buf, err := readExact(r, 2)
			if err != nil {
				return lengthOrInt{}, err
			}
			return lengthOrInt{IsInt: true, Int: int64(int16(binary.BigEndian.Uint16(buf)))}, nil
		case 2:
			buf, err := readExact(r, 4)
			if err != nil {
				return lengthOrInt{}, err
			}
			return lengthOrInt{IsInt: true, Int: int64(int32(binary.BigEndian.Uint32(buf)))}, nil
		default:
			return lengthOrInt{}, ErrBadOpcode
		}
	}
}

// writeLength always picks the smallest of the three plain-length modes
// (00/01/10); this codec never emits the special-int mode 11 on write,
// though readLength understands it for compatibility with snapshots that
// use it.
func writeLength(w *bufio.Writer, n uint64) error {
	switch {
	case n <= 0x3F:
		return w.WriteByte(byte(n))
	case n <= 0x3FFF:
		hi := byte(n>>8) | 0x40
		if err := w.WriteByte(hi); err != nil {
			return err
		}
		return w.WriteByte(byte(n))
	default:
		if err := w.WriteByte(0x80); err != nil {
			return err
		}
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(n))
		_, err := w.Write(buf[:])
		return err
	}
}

// readLenStr reads a length-prefixed string, expanding a special-int
// length back to its ASCII decimal form.
func readLenStr(r *bufio.Reader) ([]byte, error) {
	l, err := readLength(r)
	if err != nil {
		return nil, err
	}
	if l.IsInt {
		return []byte(strconv.FormatInt(l.Int, 10)), nil
	}
	return readExact(r, int(l.Length))
}

func writeLenStr(w *bufio.Writer, b []byte) error {
	if err := writeLength(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}
