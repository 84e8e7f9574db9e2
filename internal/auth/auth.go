// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package auth implements the single injected user table: flags plus a
// list of SHA-256 password hashes per user. A small struct plus a map,
// no framework — there's no comparable raw-password-hash single-profile
// model to build on (web-framework OIDC/LDAP auth doesn't fit a
// protocol this small).
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"sync"
)

// ErrIncorrectDetails is returned by Authenticate on any user/password
// mismatch; the wire-level reply code is WRONGPASS.
var ErrIncorrectDetails = errors.New("WRONGPASS invalid username-password pair or user is disabled")

// ErrNotAuthenticated is returned by command handlers that require a
// session to have authenticated first.
var ErrNotAuthenticated = errors.New("NOAUTH Authentication required")

type User struct {
	Name   string
	NoPass bool
	Hashes []string // lowercase hex of sha256(password)
}

// Table is the process-wide user registry, seeded at startup and mutated
// by ACL SETUSER.
type Table struct {
	mu    sync.RWMutex
	users map[string]*User
}

// New seeds a table with the "default" user, NoPass by construction
// (matching an out-of-the-box server that accepts unauthenticated
// connections until an operator locks it down via ACL SETUSER).
func New() *Table {
	t := &Table{users: map[string]*User{}}
	t.users["default"] = &User{Name: "default", NoPass: true}
	return t
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Authenticate validates username/password, returning the internal user
// name on success. An empty password against a NoPass user always
// succeeds; otherwise the hashed password must be among the user's
// stored hashes.
func (t *Table) Authenticate(username, password string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	u, ok := t.users[username]
	if !ok {
		return "", ErrIncorrectDetails
	}
	if u.NoPass && password == "" {
		return u.Name, nil
	}

	want := hashPassword(password)
	for _, h := range u.Hashes {
		if subtle.ConstantTimeCompare([]byte(h), []byte(want)) == 1 {
			return u.Name, nil
		}
	}
	return "", ErrIncorrectDetails
}

// DefaultRequiresAuth reports whether a fresh connection must AUTH before
// issuing commands (the "default" user lacks NoPass).
func (t *Table) DefaultRequiresAuth() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.users["default"].NoPass
}

// SetUserPassword implements "ACL SETUSER <name> >password": it clears
// NoPass and appends the hash, creating the user if absent.
func (t *Table) SetUserPassword(name, password string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.users[name]
	if !ok {
		u = &User{Name: name}
		t.users[name] = u
	}
	u.NoPass = false
	u.Hashes = append(u.Hashes, hashPassword(password))
}

// SetUserNoPass implements "ACL SETUSER <name> nopass".
func (t *Table) SetUserNoPass(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.users[name]
	if !ok {
		u = &User{Name: name}
		t.users[name] = u
	}
	u.NoPass = true
	u.Hashes = nil
}

// GetUser returns a copy of the named user's flags and password hashes
// (hex digests, never the raw passwords), false if unknown.
func (t *Table) GetUser(name string) (User, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.users[name]
	if !ok {
		return User{}, false
	}
	return User{Name: u.Name, NoPass: u.NoPass, Hashes: append([]string(nil), u.Hashes...)}, true
}
