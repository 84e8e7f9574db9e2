// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package resp

import (
	"bufio"
	"io"
	"strconv"
)

// Reader decodes frames off a byte stream. It is stateless except for the
// one-shot snapshot-blob flag set by ExpectSnapshotBlob, used by the
// replica handshake immediately after it expects a FULLRESYNC line.
type Reader struct {
	br       *bufio.Reader
	snapshot bool

	// consumed tracks total bytes read off the wire since the Reader was
	// created or since ResetOffset was called. Replicas use this for
	// REPLCONF ACK accounting.
	consumed int64
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 16*1024)}
}

// ExpectSnapshotBlob arms the one-shot snapshot-blob mode: the next
// BulkString frame is read without a trailing "\r\n".
func (r *Reader) ExpectSnapshotBlob() {
	r.snapshot = true
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 { return r.consumed }

// ResetOffset zeroes the byte counter; replicas call this at the start of
// STREAMING so the offset reported to REPLCONF GETACK counts only
// propagated command bytes.
func (r *Reader) ResetOffset() { r.consumed = 0 }

func wrapNeedMore(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrNeedMore
	}
	return err
}

func (r *Reader) readByte() (byte, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return 0, wrapNeedMore(err)
	}
	r.consumed++
	return b, nil
}

// readLine reads up to and including "\r\n", returning the bytes before it.
func (r *Reader) readLine() ([]byte, error) {
	line, err := r.br.ReadString('\n')
	r.consumed += int64(len(line))
	if err != nil {
		return nil, wrapNeedMore(err)
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, &MalformedFrame{Reason: "missing \\r\\n"}
	}
	return []byte(line[:len(line)-2]), nil
}

func parseLength(line []byte) (int64, error) {
	n, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return 0, &BadLength{Got: string(line)}
	}
	return n, nil
}

// ReadValue decodes the next frame. It returns ErrNeedMore if the
// underlying stream ended mid-frame.
func (r *Reader) ReadValue() (Value, error) {
	tag, err := r.readByte()
	if err != nil {
		return Value{}, err
	}

	switch Kind(tag) {
	case KindSimpleString:
		line, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		return SimpleString(string(line)), nil

	case KindError:
		line, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		return Error(string(line)), nil

	case KindInteger:
		line, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		n, err := strconv.ParseInt(string(line), 10, 64)
		if err != nil {
			return Value{}, &BadLength{Got: string(line)}
		}
		return Integer(n), nil

	case KindBulkString:
		line, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		n, err := parseLength(line)
		if err != nil {
			return Value{}, err
		}
		if n == -1 {
			return NullBulkString(), nil
		}
		if n < -1 {
			return Value{}, &BadLength{Got: string(line)}
		}

		buf := make([]byte, n)
		if n > 0 {
			read, err := io.ReadFull(r.br, buf)
			r.consumed += int64(read)
			if err != nil {
				return Value{}, wrapNeedMore(err)
			}
		}

		if r.snapshot {
			r.snapshot = false
			return Value{Kind: KindBulkString, Bulk: buf}, nil
		}

		var crlf [2]byte
		read, err := io.ReadFull(r.br, crlf[:])
		r.consumed += int64(read)
		if err != nil {
			return Value{}, wrapNeedMore(err)
		}
		if crlf != [2]byte{'\r', '\n'} {
			return Value{}, &MalformedFrame{Reason: "missing \\r\\n after bulk string"}
		}
		return BulkString(buf), nil

	case KindArray:
		line, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		n, err := parseLength(line)
		if err != nil {
			return Value{}, err
		}
		if n == -1 {
			return NullArray(), nil
		}
		if n < -1 {
			return Value{}, &BadLength{Got: string(line)}
		}

		items := make([]Value, n)
		for i := range items {
			v, err := r.ReadValue()
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Array(items), nil

	default:
		return Value{}, &BadTag{Got: tag}
	}
}
