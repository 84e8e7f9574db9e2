// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package command implements the request parser and the command dispatch
// table: a positional-typed-argument cursor over each request's bulk
// strings, generalized from a pattern-trie input binder's left-to-right
// walk with fork/rewind for speculative matches.
package command

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrEmptyArg is returned when a scalar read is attempted with no arguments
// left on the cursor.
var ErrEmptyArg = errors.New("EmptyArg")

// Expected is returned when a literal/enum argument doesn't match.
type Expected struct {
	Name string
	Got  string
}

func (e *Expected) Error() string {
	return fmt.Sprintf("ERR expected %s, got %q", e.Name, e.Got)
}

type BadInteger struct{ Got string }

func (e *BadInteger) Error() string { return "ERR value is not an integer or out of range" }

type BadFloat struct{ Got string }

func (e *BadFloat) Error() string { return "ERR value is not a valid float" }

// Cursor walks a request's bulk-string arguments left to right, with a
// fork/rewind mark for speculative (Optional) parses.
type Cursor struct {
	args []string
	pos  int
}

func NewCursor(args []string) *Cursor {
	return &Cursor{args: args}
}

// Mark returns a position Rewind can restore, for Optional's fork/commit.
func (c *Cursor) Mark() int { return c.pos }

func (c *Cursor) Rewind(mark int) { c.pos = mark }

func (c *Cursor) Done() bool { return c.pos >= len(c.args) }

func (c *Cursor) Remaining() int { return len(c.args) - c.pos }

// Next returns the next argument, advancing the cursor.
func (c *Cursor) Next() (string, error) {
	if c.Done() {
		return "", ErrEmptyArg
	}
	v := c.args[c.pos]
	c.pos++
	return v, nil
}

// Peek returns the next argument without advancing.
func (c *Cursor) Peek() (string, bool) {
	if c.Done() {
		return "", false
	}
	return c.args[c.pos], true
}

// Bytes binds the next argument as a raw byte payload.
func (c *Cursor) Bytes() ([]byte, error) {
	s, err := c.Next()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// Int binds the next argument as a signed 64-bit integer.
func (c *Cursor) Int() (int64, error) {
	s, err := c.Next()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &BadInteger{Got: s}
	}
	return n, nil
}

// Uint binds the next argument as an unsigned 64-bit integer.
func (c *Cursor) Uint() (uint64, error) {
	s, err := c.Next()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, &BadInteger{Got: s}
	}
	return n, nil
}

// Float binds the next argument as a 64-bit float.
func (c *Cursor) Float() (float64, error) {
	s, err := c.Next()
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &BadFloat{Got: s}
	}
	return f, nil
}

// Literal consumes the next argument if it case-insensitively equals
// want, failing with Expected otherwise.
func (c *Cursor) Literal(want string) error {
	s, err := c.Next()
	if err != nil {
		return err
	}
	if !equalFold(s, want) {
		return &Expected{Name: want, Got: s}
	}
	return nil
}

// TryLiteral is Literal's speculative form: on mismatch it rewinds and
// reports false instead of erroring.
func (c *Cursor) TryLiteral(want string) bool {
	mark := c.Mark()
	if err := c.Literal(want); err != nil {
		c.Rewind(mark)
		return false
	}
	return true
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Optional speculatively tries parse; on failure it rewinds the cursor and
// returns the zero value with ok=false, rather than propagating the
// error — the fork/commit behaviour expected of an Optional<T>.
func Optional[T any](c *Cursor, parse func(*Cursor) (T, error)) (T, bool) {
	mark := c.Mark()
	v, err := parse(c)
	if err != nil {
		c.Rewind(mark)
		var zero T
		return zero, false
	}
	return v, true
}

// Vec greedily applies parse until the cursor is exhausted or parse fails;
// a failing final attempt rewinds to before that attempt, so a Vec never
// consumes a malformed trailing argument meant for something else.
func Vec[T any](c *Cursor, parse func(*Cursor) (T, error)) []T {
	var out []T
	for !c.Done() {
		mark := c.Mark()
		v, err := parse(c)
		if err != nil {
			c.Rewind(mark)
			break
		}
		out = append(out, v)
	}
	return out
}

// Map greedily consumes key/value pairs while at least two arguments
// remain, preserving input order (an "ordered Map<K,V>").
func Map[K, V any](c *Cursor, parseKey func(*Cursor) (K, error), parseVal func(*Cursor) (V, error)) ([]K, []V, error) {
	var keys []K
	var vals []V
	for c.Remaining() >= 2 {
		k, err := parseKey(c)
		if err != nil {
			return keys, vals, err
		}
		v, err := parseVal(c)
		if err != nil {
			return keys, vals, err
		}
		keys = append(keys, k)
		vals = append(vals, v)
	}
	return keys, vals, nil
}

// Either tries parseL, falling back to parseR on failure.
func Either[L, R any](c *Cursor, parseL func(*Cursor) (L, error), parseR func(*Cursor) (R, error)) (l L, r R, left bool, err error) {
	mark := c.Mark()
	l, lerr := parseL(c)
	if lerr == nil {
		return l, r, true, nil
	}
	c.Rewind(mark)
	r, rerr := parseR(c)
	if rerr == nil {
		return l, r, false, nil
	}
	return l, r, false, rerr
}
