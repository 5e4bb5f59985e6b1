// Package jsp (JSON persistence) saves and loads arbitrary structures to
// disk as JSON, optionally prefixed with a signature and an xxhash
// checksum of the body so a half-written or corrupted file is detected on
// load rather than silently misparsed. The checksum/signature codec is
// built directly against xxhash here rather than through a separate
// checksum abstraction.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package jsp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/OneOfOne/xxhash"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const signature = "oio-sds\x00" // 8 bytes, written only when opts.Signature

// Options controls what SaveMeta/LoadMeta wrap around the JSON body.
type Options struct {
	Signature bool
	Checksum  bool
}

// CCSign is the combination config.go uses: signed and checksummed.
func CCSign() Options { return Options{Signature: true, Checksum: true} }

// Opts is implemented by anything that knows its own persistence options,
// the way cmn.Config does.
type Opts interface {
	JspOpts() Options
}

// Cksum is the checksum recorded alongside a persisted file.
type Cksum struct {
	Ty  string
	Val uint64
}

func (c *Cksum) String() string { return fmt.Sprintf("%s[%x]", c.Ty, c.Val) }

// ErrBadCksum is returned by Decode when the recorded checksum does not
// match the body actually read.
type ErrBadCksum struct {
	Expected, Actual uint64
}

func (e *ErrBadCksum) Error() string {
	return fmt.Sprintf("jsp: bad checksum: expected %x, got %x", e.Expected, e.Actual)
}

// Encode writes v as JSON to w, wrapped per opts.
func Encode(w io.Writer, v interface{}, opts Options) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if opts.Signature {
		if _, err := io.WriteString(w, signature); err != nil {
			return err
		}
	}
	if opts.Checksum {
		h := xxhash.New64()
		_, _ = h.Write(body)
		sum := h.Sum64()
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], sum)
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	_, err = w.Write(body)
	return err
}

// Decode reads a file written by Encode into v, verifying the checksum
// when opts.Checksum is set.
func Decode(r io.Reader, v interface{}, opts Options, tag string) (*Cksum, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if opts.Signature {
		if len(raw) < len(signature) || string(raw[:len(signature)]) != signature {
			return nil, fmt.Errorf("jsp: %s: missing or bad signature", tag)
		}
		raw = raw[len(signature):]
	}
	var cksum *Cksum
	if opts.Checksum {
		if len(raw) < 8 {
			return nil, fmt.Errorf("jsp: %s: truncated checksum header", tag)
		}
		expected := binary.BigEndian.Uint64(raw[:8])
		raw = raw[8:]
		h := xxhash.New64()
		_, _ = h.Write(raw)
		actual := h.Sum64()
		if actual != expected {
			return nil, &ErrBadCksum{Expected: expected, Actual: actual}
		}
		cksum = &Cksum{Ty: "xxhash64", Val: actual}
	}
	if err := json.Unmarshal(bytes.TrimSpace(raw), v); err != nil {
		return nil, fmt.Errorf("jsp: %s: %w", tag, err)
	}
	return cksum, nil
}
