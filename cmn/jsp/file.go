// Package jsp (JSON persistence) provides utilities to store and load
// arbitrary JSON-encoded structures with optional checksumming.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package jsp

import (
	"errors"
	"os"

	"github.com/golang/glog"
)

//////////////////
// main methods //
//////////////////

func SaveMeta(filepath string, meta Opts) error {
	return Save(filepath, meta, meta.JspOpts())
}

func Save(filepath string, v interface{}, opts Options) (err error) {
	tmp := filepath + ".tmp"
	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		if nestedErr := os.Remove(tmp); nestedErr != nil && !os.IsNotExist(nestedErr) {
			glog.Errorf("nested (%v): failed to remove %s: %v", err, tmp, nestedErr)
		}
	}()
	if err = Encode(file, v, opts); err != nil {
		glog.Errorf("failed to encode %s: %v", filepath, err)
		file.Close()
		return
	}
	if err = file.Sync(); err != nil {
		file.Close()
		return
	}
	if err = file.Close(); err != nil {
		return
	}
	err = os.Rename(tmp, filepath)
	return
}

func LoadMeta(filepath string, meta Opts) (*Cksum, error) {
	return Load(filepath, meta, meta.JspOpts())
}

func Load(filepath string, v interface{}, opts Options) (checksum *Cksum, err error) {
	file, err := os.Open(filepath)
	if err != nil {
		return
	}
	defer file.Close()
	checksum, err = Decode(file, v, opts, filepath)
	if err != nil {
		var badCksum *ErrBadCksum
		if errors.As(err, &badCksum) {
			if errRm := os.Remove(filepath); errRm == nil {
				glog.Errorf("bad checksum: removed %s", filepath)
			} else {
				glog.Errorf("bad checksum: failed to remove %s: %v", filepath, errRm)
			}
		}
		return
	}
	return
}
