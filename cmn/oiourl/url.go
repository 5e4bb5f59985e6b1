// Package oiourl implements the hierarchical object URL used throughout the
// control plane: namespace / account / user / path / version. Grounded on
// the oio_url_s opaque type referenced from resolver/hc_resolver.h and the
// hc_url_has/hc_url_get/hc_url_set accessors exercised across
// meta2v2/meta2_utils.c (HCURL_PATH, HCURL_VERSION, HCURL_WHOLE).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package oiourl

import (
	"fmt"
	"strconv"
	"strings"
)

// Field identifies one optional component of a URL, mirroring HCURL_* in
// the source. Presence, not just value, matters: GET resolution precedence
// depends on whether a version was explicitly set.
type Field int

const (
	Namespace Field = iota
	Account
	User
	Path
	Version
)

// URL addresses one object (an Alias) inside one container (ns/account/user).
type URL struct {
	ns, account, user, path string
	version                 *int64 // nil unless explicitly set
}

// New parses "ns/account/user/path[?version=V]" into a URL. The version, if
// present, is carried as a query-style suffix since '/' inside path is legal.
func New(raw string) (*URL, error) {
	body, version, err := splitVersion(raw)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(body, "/", 4)
	if len(parts) < 3 {
		return nil, fmt.Errorf("oiourl: malformed url %q: need ns/account/user[/path]", raw)
	}
	u := &URL{ns: parts[0], account: parts[1], user: parts[2]}
	if len(parts) == 4 {
		u.path = parts[3]
	}
	u.version = version
	return u, nil
}

func splitVersion(raw string) (body string, version *int64, err error) {
	idx := strings.Index(raw, "?version=")
	if idx < 0 {
		return raw, nil, nil
	}
	v, err := strconv.ParseInt(raw[idx+len("?version="):], 10, 64)
	if err != nil {
		return "", nil, fmt.Errorf("oiourl: bad version in %q: %w", raw, err)
	}
	return raw[:idx], &v, nil
}

func (u *URL) Namespace() string { return u.ns }
func (u *URL) Account() string   { return u.account }
func (u *URL) User() string      { return u.user }
func (u *URL) Path() string      { return u.path }

// ContainerRef identifies the META2 container: ns/account/user, independent
// of the path/version of any one object inside it.
func (u *URL) ContainerRef() string {
	return u.ns + "/" + u.account + "/" + u.user
}

func (u *URL) Has(f Field) bool {
	switch f {
	case Namespace:
		return u.ns != ""
	case Account:
		return u.account != ""
	case User:
		return u.user != ""
	case Path:
		return u.path != ""
	case Version:
		return u.version != nil
	}
	return false
}

// Version returns the explicit version and true, or (0, false) if the URL
// does not pin one - callers then fall back to LATEST resolution.
func (u *URL) Version() (int64, bool) {
	if u.version == nil {
		return 0, false
	}
	return *u.version, true
}

func (u *URL) SetVersion(v int64) { u.version = &v }
func (u *URL) ClearVersion()      { u.version = nil }

func (u *URL) SetPath(p string) { u.path = p }

func (u *URL) Whole() string {
	s := u.ns + "/" + u.account + "/" + u.user
	if u.path != "" {
		s += "/" + u.path
	}
	if u.version != nil {
		s += fmt.Sprintf("?version=%d", *u.version)
	}
	return s
}

func (u *URL) String() string { return u.Whole() }

func (u *URL) Clone() *URL {
	c := *u
	if u.version != nil {
		v := *u.version
		c.version = &v
	}
	return &c
}
