// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package store

import (
	"math"
	"testing"
	"time"
)

func TestSetGetExpiry(t *testing.T) {
	st := New()

	_, set, err := st.Set("foo", []byte("bar"), SetOptions{Expiry: Expiry{At: time.Now().Add(100 * time.Millisecond)}})
	if err != nil || !set {
		t.Fatalf("Set: set=%v err=%v", set, err)
	}

	v, ok, err := st.Get("foo")
	if err != nil || !ok || string(v) != "bar" {
		t.Fatalf("Get: v=%q ok=%v err=%v", v, ok, err)
	}

	time.Sleep(150 * time.Millisecond)

	_, ok, err = st.Get("foo")
	if err != nil || ok {
		t.Fatalf("expected expired key to read missing, ok=%v err=%v", ok, err)
	}
}

func TestIncrOnMissingKey(t *testing.T) {
	st := New()

	n, err := st.Incr("counter", 1)
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	n, err = st.Incr("counter", 1)
	if err != nil || n != 2 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	v, _, _ := st.Get("counter")
	if string(v) != "2" {
		t.Fatalf("got %q", v)
	}
}

func TestKindIsolation(t *testing.T) {
	st := New()
	if _, _, err := st.Set("k", []byte("v"), SetOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.RPush("k", []byte("x")); err != ErrWrongType {
		t.Fatalf("want ErrWrongType, got %v", err)
	}
}

func TestBLPopWakesOnRPush(t *testing.T) {
	st := New()
	done := make(chan struct{})
	results := make(chan *BlpopResult, 1)

	go func() {
		r, err := st.BLPop([]string{"k"}, 5*time.Second, done)
		if err != nil {
			t.Errorf("BLPop: %v", err)
		}
		results <- r
	}()

	time.Sleep(20 * time.Millisecond)
	if _, err := st.RPush("k", []byte("v1"), []byte("v2")); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-results:
		if r == nil || r.Key != "k" || string(r.Value) != "v1" {
			t.Fatalf("got %#v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for BLPop")
	}

	rest, err := st.LRange("k", 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 || string(rest[0]) != "v2" {
		t.Fatalf("got %v", rest)
	}
}

func TestBLPopTimeout(t *testing.T) {
	st := New()
	r, err := st.BLPop([]string{"nope"}, 20*time.Millisecond, nil)
	if err != nil || r != nil {
		t.Fatalf("r=%v err=%v", r, err)
	}
}

func TestZSetOrdering(t *testing.T) {
	st := New()
	if _, err := st.ZAdd("z", map[string]float64{"a": 3, "b": 1, "c": 2}); err != nil {
		t.Fatal(err)
	}

	got, err := st.ZRange("z", 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"b", "c", "a"}
	for i, m := range got {
		if m.Member != want[i] {
			t.Fatalf("index %d: got %s want %s", i, m.Member, want[i])
		}
	}

	rank, ok, err := st.ZRank("z", "a")
	if err != nil || !ok || rank != 2 {
		t.Fatalf("rank=%d ok=%v err=%v", rank, ok, err)
	}
}

func TestXAddWildcard(t *testing.T) {
	st := New()

	id, err := st.XAdd("s", "0-*", []Field{{Name: []byte("a"), Value: []byte("1")}})
	if err != nil || id.String() != "0-1" {
		t.Fatalf("id=%v err=%v", id, err)
	}

	id, err = st.XAdd("s", "0-*", []Field{{Name: []byte("a"), Value: []byte("2")}})
	if err != nil || id.String() != "0-2" {
		t.Fatalf("id=%v err=%v", id, err)
	}

	_, err = st.XAdd("s", "0-0", []Field{{Name: []byte("a"), Value: []byte("x")}})
	if err != ErrIdZeroZero {
		t.Fatalf("want ErrIdZeroZero, got %v", err)
	}
}

func TestXAddNotGreater(t *testing.T) {
	st := New()
	if _, err := st.XAdd("s", "5-5", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := st.XAdd("s", "5-5", nil); err != ErrIdNotGreater {
		t.Fatalf("want ErrIdNotGreater, got %v", err)
	}
	if _, err := st.XAdd("s", "4-9", nil); err != ErrIdNotGreater {
		t.Fatalf("want ErrIdNotGreater, got %v", err)
	}
}

func TestXReadWakesOnXAdd(t *testing.T) {
	st := New()
	done := make(chan struct{})
	results := make(chan []XReadResult, 1)

	go func() {
		r, err := st.XRead([]XReadQuery{{Key: "s", After: StreamID{}}}, 5*time.Second, true, done)
		if err != nil {
			t.Errorf("XRead: %v", err)
		}
		results <- r
	}()

	time.Sleep(20 * time.Millisecond)
	if _, err := st.XAdd("s", "*", []Field{{Name: []byte("a"), Value: []byte("1")}}); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-results:
		if len(r) != 1 || len(r[0].Entries) != 1 {
			t.Fatalf("got %#v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for XRead")
	}
}

func TestGeoEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct{ lat, lon float64 }{
		{48.8534, 2.3488},
		{51.5074, -0.1278},
		{0, 0},
		{-85.05, 179.999},
	}
	for _, c := range cases {
		score, err := GeoEncode(c.lat, c.lon)
		if err != nil {
			t.Fatalf("encode(%v,%v): %v", c.lat, c.lon, err)
		}
		lat, lon := GeoDecode(score)
		if math.Abs(lat-c.lat) > 0.001 || math.Abs(lon-c.lon) > 0.001 {
			t.Fatalf("round trip: got (%v,%v) want (%v,%v)", lat, lon, c.lat, c.lon)
		}
	}
}

func TestGeoEncodeOutOfRange(t *testing.T) {
	if _, err := GeoEncode(90, 0); err == nil {
		t.Fatal("expected InvalidCoordinate")
	}
}

func TestHaversineSymmetry(t *testing.T) {
	a := [2]float64{48.8534, 2.3488}
	b := [2]float64{51.5074, -0.1278}

	d1 := Haversine(a[0], a[1], b[0], b[1])
	d2 := Haversine(b[0], b[1], a[0], a[1])
	if math.Abs(d1-d2) > 1e-6 {
		t.Fatalf("not symmetric: %v vs %v", d1, d2)
	}
	if d := Haversine(a[0], a[1], a[0], a[1]); d != 0 {
		t.Fatalf("distance(a,a) = %v, want 0", d)
	}
}

func TestGeoDistParisLondon(t *testing.T) {
	st := New()
	if _, err := st.GeoAdd("places", map[string][2]float64{"Paris": {2.3488, 48.8534}}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.GeoAdd("places", map[string][2]float64{"London": {-0.1278, 51.5074}}); err != nil {
		t.Fatal(err)
	}

	d, ok, err := st.GeoDist("places", "Paris", "London")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if math.Abs(d-343555) > 1000 {
		t.Fatalf("got %v metres, want ~343555", d)
	}
}
