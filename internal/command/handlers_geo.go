// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package command

import (
	"github.com/sandia-minimega/keyd/internal/resp"
	"github.com/sandia-minimega/keyd/internal/store"
)

func init() {
	register(&Handler{Name: "GEOADD", MinArgs: 4, MaxArgs: -1, Write: true, Call: cmdGeoAdd})
	register(&Handler{Name: "GEOPOS", MinArgs: 2, MaxArgs: -1, Call: cmdGeoPos})
	register(&Handler{Name: "GEODIST", MinArgs: 3, MaxArgs: 4, Call: cmdGeoDist})
	register(&Handler{Name: "GEOSEARCH", MinArgs: 7, MaxArgs: -1, Call: cmdGeoSearch})
}

// geoUnitToMeters converts the handful of GEOSEARCH/GEODIST unit tokens.
func geoUnitToMeters(unit string) (float64, error) {
	switch unit {
	case "m":
		return 1, nil
	case "km":
		return 1000, nil
	case "mi":
		return 1609.34, nil
	case "ft":
		return 0.3048, nil
	default:
		return 0, &SyntaxError{Msg: "unsupported unit " + unit}
	}
}

// cmdGeoAdd parses GEOADD key (lon lat member)... as a Map<[2]float,string>
// walked manually since Map<K,V> only binds a single scalar per side.
func cmdGeoAdd(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	c := NewCursor(args)
	key, _ := c.Next()

	rest := c.Remaining()
	if rest == 0 || rest%3 != 0 {
		return resp.Value{}, &SyntaxError{Msg: "GEOADD requires lon/lat/member triples"}
	}

	points := make(map[string][2]float64, rest/3)
	for !c.Done() {
		lon, err := c.Float()
		if err != nil {
			return resp.Value{}, err
		}
		lat, err := c.Float()
		if err != nil {
			return resp.Value{}, err
		}
		member, _ := c.Next()
		points[member] = [2]float64{lon, lat}
	}

	n, err := ctx.Store.GeoAdd(key, points)
	if err != nil {
		return resp.Value{}, err
	}
	return resp.Integer(int64(n)), nil
}

func cmdGeoPos(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	positions, err := ctx.Store.GeoPos(args[0], args[1:]...)
	if err != nil {
		return resp.Value{}, err
	}
	out := make([]resp.Value, len(positions))
	for i, p := range positions {
		if p == nil {
			out[i] = resp.NullArray()
			continue
		}
		out[i] = resp.Array([]resp.Value{
			resp.BulkStringFromString(formatFloat(p[0])),
			resp.BulkStringFromString(formatFloat(p[1])),
		})
	}
	return resp.Array(out), nil
}

func cmdGeoDist(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	scale := 1.0
	if len(args) == 4 {
		s, err := geoUnitToMeters(args[3])
		if err != nil {
			return resp.Value{}, err
		}
		scale = s
	}
	dist, ok, err := ctx.Store.GeoDist(args[0], args[1], args[2])
	if err != nil {
		return resp.Value{}, err
	}
	if !ok {
		return resp.NullBulkString(), nil
	}
	return resp.BulkStringFromString(formatFloat(dist / scale)), nil
}

// cmdGeoSearch parses GEOSEARCH key FROMLONLAT lon lat BYRADIUS r unit
// [ASC|DESC] [COUNT n], or the same with BYBOX width height unit in place
// of BYRADIUS.
func cmdGeoSearch(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	c := NewCursor(args)
	key, _ := c.Next()

	if err := c.Literal("FROMLONLAT"); err != nil {
		return resp.Value{}, err
	}
	lon, err := c.Float()
	if err != nil {
		return resp.Value{}, err
	}
	lat, err := c.Float()
	if err != nil {
		return resp.Value{}, err
	}

	var (
		radiusM   float64
		boxWidth  float64
		boxHeight float64
		useBox    bool
	)
	if c.TryLiteral("BYRADIUS") {
		r, err := c.Float()
		if err != nil {
			return resp.Value{}, err
		}
		unit, err := c.Next()
		if err != nil {
			return resp.Value{}, err
		}
		scale, err := geoUnitToMeters(unit)
		if err != nil {
			return resp.Value{}, err
		}
		radiusM = r * scale
	} else if c.TryLiteral("BYBOX") {
		w, err := c.Float()
		if err != nil {
			return resp.Value{}, err
		}
		h, err := c.Float()
		if err != nil {
			return resp.Value{}, err
		}
		unit, err := c.Next()
		if err != nil {
			return resp.Value{}, err
		}
		scale, err := geoUnitToMeters(unit)
		if err != nil {
			return resp.Value{}, err
		}
		boxWidth = w * scale
		boxHeight = h * scale
		useBox = true
	} else {
		return resp.Value{}, &SyntaxError{Msg: "GEOSEARCH requires BYRADIUS or BYBOX"}
	}

	desc := false
	if c.TryLiteral("ASC") {
		desc = false
	} else if c.TryLiteral("DESC") {
		desc = true
	}

	count := 0
	if c.TryLiteral("COUNT") {
		n, err := c.Int()
		if err != nil {
			return resp.Value{}, err
		}
		count = int(n)
	}

	var results []store.GeoSearchResult
	if useBox {
		results, err = ctx.Store.GeoSearchBox(key, lon, lat, boxWidth, boxHeight, desc, count)
	} else {
		results, err = ctx.Store.GeoSearch(key, lon, lat, radiusM, desc, count)
	}
	if err != nil {
		return resp.Value{}, err
	}
	out := make([]resp.Value, len(results))
	for i, r := range results {
		out[i] = resp.BulkStringFromString(r.Member)
	}
	return resp.Array(out), nil
}
