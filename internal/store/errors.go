// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package store holds the typed key space: strings/integers, lists, sorted
// sets, and streams. Kinds share no storage; a shared key registry enforces
// that a key belongs to exactly one kind at a time.
package store

import "errors"

// ErrWrongType is returned when an operation targets a key already holding
// a value of a different kind.
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// ErrIdNotGreater is returned by XADD when a supplied stream id is not
// strictly greater than the stream's last id.
var ErrIdNotGreater = errors.New("ERR The ID specified in XADD is equal or smaller than the target stream top item")

// ErrIdZeroZero is returned by XADD when the resolved id is 0-0.
var ErrIdZeroZero = errors.New("ERR The ID specified in XADD must be greater than 0-0")

// InvalidCoordinate is returned when a GEOADD latitude/longitude falls
// outside the encodable range.
type InvalidCoordinate struct {
	Lat, Lon float64
}

func (e *InvalidCoordinate) Error() string {
	return "ERR invalid longitude,latitude pair"
}

// ErrNotInteger is returned by INCR against a non-integer string value.
var ErrNotInteger = errors.New("ERR value is not an integer or out of range")
