// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package resp

import (
	"bufio"
	"io"
	"strconv"
)

// Writer encodes frames onto a byte stream. Callers must call Flush after
// each reply (or batch of replies) they want delivered.
type Writer struct {
	bw *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriterSize(w, 16*1024)}
}

func (w *Writer) Flush() error { return w.bw.Flush() }

func (w *Writer) WriteValue(v Value) error {
	switch v.Kind {
	case KindSimpleString:
		return w.writeLine('+', v.Str)
	case KindError:
		return w.writeLine('-', v.Str)
	case KindInteger:
		return w.writeLine(':', strconv.FormatInt(v.Int, 10))
	case KindBulkString:
		return w.writeBulk(v)
	case KindArray:
		return w.writeArray(v)
	default:
		return &BadTag{Got: byte(v.Kind)}
	}
}

func (w *Writer) writeLine(tag byte, body string) error {
	if err := w.bw.WriteByte(tag); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(body); err != nil {
		return err
	}
	_, err := w.bw.WriteString("\r\n")
	return err
}

func (w *Writer) writeBulk(v Value) error {
	if v.IsNull() {
		_, err := w.bw.WriteString("$-1\r\n")
		return err
	}
	if err := w.bw.WriteByte('$'); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(strconv.Itoa(len(v.Bulk))); err != nil {
		return err
	}
	if _, err := w.bw.WriteString("\r\n"); err != nil {
		return err
	}
	if _, err := w.bw.Write(v.Bulk); err != nil {
		return err
	}
	_, err := w.bw.WriteString("\r\n")
	return err
}

func (w *Writer) writeArray(v Value) error {
	if v.IsNull() {
		_, err := w.bw.WriteString("*-1\r\n")
		return err
	}
	if err := w.bw.WriteByte('*'); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(strconv.Itoa(len(v.Array))); err != nil {
		return err
	}
	if _, err := w.bw.WriteString("\r\n"); err != nil {
		return err
	}
	for _, item := range v.Array {
		if err := w.WriteValue(item); err != nil {
			return err
		}
	}
	return nil
}

// WriteSnapshotBlob writes a bulk-string length header followed by data
// with no trailing "\r\n", mirroring the one-shot read side used during
// the FULLRESYNC handshake.
func (w *Writer) WriteSnapshotBlob(data []byte) error {
	if err := w.bw.WriteByte('$'); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(strconv.Itoa(len(data))); err != nil {
		return err
	}
	if _, err := w.bw.WriteString("\r\n"); err != nil {
		return err
	}
	_, err := w.bw.Write(data)
	return err
}

// Command encodes a request/propagated-write as an Array of BulkStrings,
// the canonical client-to-server and primary-to-replica framing.
func Command(args ...string) Value {
	items := make([]Value, len(args))
	for i, a := range args {
		items[i] = BulkStringFromString(a)
	}
	return Array(items)
}
