// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package resp

import "errors"

// ErrNeedMore signals truncation: the reader has a well-formed prefix but
// needs more bytes before a frame can be produced. Callers should retry
// once more data has arrived on the underlying connection.
var ErrNeedMore = errors.New("resp: need more bytes")

// MalformedFrame is returned when a frame body is missing its trailing
// "\r\n" terminator.
type MalformedFrame struct {
	Reason string
}

func (e *MalformedFrame) Error() string { return "resp: malformed frame: " + e.Reason }

// BadLength is returned when a length prefix (bulk string or array) does
// not parse as a decimal integer.
type BadLength struct {
	Got string
}

func (e *BadLength) Error() string { return "resp: bad length: " + e.Got }

// BadTag is returned when the first byte of a frame does not match any
// known tag.
type BadTag struct {
	Got byte
}

func (e *BadTag) Error() string { return "resp: bad tag: " + string(rune(e.Got)) }
