// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package rdb

import "github.com/sandia-minimega/keyd/internal/store"

// FromStore dumps every live string and list key of st into a single
// database-0 section. Sorted sets and streams have no record kind in
// this codec — only string and list are named, other kinds are
// reserved — and are intentionally left out of the snapshot, matching
// the grounding source's own scope.
func FromStore(st *store.Store) *File {
	db := Database{Index: 0}

	for _, key := range st.Keys() {
		if e, ok := st.RawStringGet(key); ok {
			db.Keys = append(db.Keys, KeyValue{
				Key:            []byte(key),
				Kind:           KVString,
				StringValue:    e.Payload,
				ExpireAtUnixMs: e.ExpireAtUnixMs,
			})
			continue
		}
		if vals, ok := st.RawListGet(key); ok {
			db.Keys = append(db.Keys, KeyValue{
				Key:       []byte(key),
				Kind:      KVList,
				ListValue: vals,
			})
		}
	}

	f := &File{Aux: map[string][]byte{"redis-ver": []byte("keyd")}}
	if len(db.Keys) > 0 {
		f.Databases = append(f.Databases, db)
	}
	return f
}

// LoadInto restores every record of f into st.
func LoadInto(f *File, st *store.Store) {
	for _, db := range f.Databases {
		for _, kv := range db.Keys {
			switch kv.Kind {
			case KVString:
				st.LoadString(string(kv.Key), kv.StringValue, kv.ExpireAtUnixMs)
			case KVList:
				st.LoadList(string(kv.Key), kv.ListValue)
			}
		}
	}
}
