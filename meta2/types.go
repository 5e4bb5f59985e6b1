// Package meta2 implements the container metadata engine:
// one SQLite database per container holding Aliases (path -> content
// version mapping), Contents (the logical object a set of aliases can
// point to, for dedup), Chunks (physical placement of a content) and
// Properties. Grounded on
// original_source/meta2v2/meta2_utils.c's m2db_put_alias / m2db_merge_alias
// / m2db_delete_alias / m2db_copy_alias / m2db_append_to_alias /
// m2db_purge / m2db_deduplicate_contents, whose GSList-of-beans model is
// re-expressed here as typed rows behind a mattn/go-sqlite3 connection.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package meta2

import "time"

// Alias is one (path, version) -> content-id mapping inside a container,
// the bean_ALIAS_s equivalent.
type Alias struct {
	Path      string
	Version   int64
	ContentID string
	Deleted   bool
	CTime     int64
}

// Content is the logical object a set of chunks implements, shared by
// every alias whose ContentID matches (bean_CONTENT_s / CONTENT_HEADER).
type Content struct {
	ID       string
	Size     int64
	Policy   string
	Checksum string // hex content-wide checksum, used by Deduplicate
	CTime    int64
}

// Chunk is one physical fragment of a Content (bean_CHUNK_s).
type Chunk struct {
	ID       string
	ContentID string
	Position int
	Parity   bool
	URL      string // rawx location the chunk lives at
	Size     int64
	Hash     string
}

// Property is a user-defined (key, value) attached to one alias path.
type Property struct {
	Path  string
	Key   string
	Value string
}

// VersioningPolicy mirrors VERSIONS_DISABLED / VERSIONS_SUSPENDED /
// VERSIONS_LIMITED on cmn.Meta2Config.DefaultMaxVersions:
//   0  -> disabled: exactly one live alias allowed per path
//  -1  -> suspended: each put writes version latest+1 and deletes the
//         previous latest row, so one alias row remains per path
//  >0  -> limited: each put appends version latest+1 and keeps the older
//         rows; Purge trims the oldest once the count exceeds the limit
type VersioningPolicy int64

const (
	VersioningDisabled VersioningPolicy = 0
	VersioningSuspended VersioningPolicy = -1
)

func (v VersioningPolicy) Disabled() bool  { return v == VersioningDisabled }
func (v VersioningPolicy) Suspended() bool { return v == VersioningSuspended }
func (v VersioningPolicy) Limited() bool   { return v > 0 }

// ContainerInfo is the container-wide header row (namespace, ctime, size,
// max_versions, retention_delay, default policy).
type ContainerInfo struct {
	Ref             string
	Namespace       string
	CTime           int64
	Size            int64
	MaxVersions     VersioningPolicy
	RetentionDelay  time.Duration
	DefaultPolicy   string
}
