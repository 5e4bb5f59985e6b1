// Package cmn provides common low-level types and utilities: configuration,
// the error taxonomy, the hierarchical object URL, and JSON helpers shared
// by every other package in this module.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

// REST path segments served by the gateway.
const (
	Version    = "v1"
	Conscience = "conscience"
	Reference  = "reference"
	Container  = "container"
	Content    = "content"
	Property   = "property"
	Health     = "health"
)

// Directory resolver lookup flags - grounded on resolver/hc_resolver.h's
// HCRESOLVE_* bit flags.
type ResolveFlag int

const ResolveDefault ResolveFlag = 0

const (
	NoCache ResolveFlag = 1 << iota
	NoATime
	NoMax
)

func (f ResolveFlag) Has(bit ResolveFlag) bool { return f&bit != 0 }

// Container versioning policy sentinels - grounded on
// metautils/lib/storage_policy.h's VERSIONING_* constants.
const (
	VersioningDisabled = 0
	VersioningSuspended = -1
	VersioningUnlimited = -2
)

// TokenFname is the filename authn persists a cached bearer token under.
const TokenFname = "token"
