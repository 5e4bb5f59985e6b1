// +build !debug

// Package debug provides assertions that are compiled in only when built
// with the "debug" build tag.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package debug

func Assert(_ bool, _ ...interface{})           {}
func Assertf(_ bool, _ string, _ ...interface{}) {}
func AssertNoErr(_ error)                        {}
func Func(_ func())                              {}
