// Package upload implements the parallel HTTP PUT fan-out engine: one
// source reader, many destination chunk services, written concurrently
// off a single shared buffer so the body is read from its source exactly
// once.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package upload

import (
	"io"
	"sync"
)

// sharedBuffer is an append-only byte buffer one producer fills and any
// number of consumers read concurrently at their own pace, each blocking
// on a watermark rather than polling - the Go equivalent of
// http_put.c's _data_ready() check against the shared circular buffer,
// done here with a sync.Cond instead of curl's single-threaded
// readiness callback.
type sharedBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
	err    error
}

func newSharedBuffer() *sharedBuffer {
	sb := &sharedBuffer{}
	sb.cond = sync.NewCond(&sb.mu)
	return sb
}

func (sb *sharedBuffer) write(p []byte) {
	sb.mu.Lock()
	sb.buf = append(sb.buf, p...)
	sb.cond.Broadcast()
	sb.mu.Unlock()
}

// close marks the buffer complete; err is nil on a clean EOF from the
// producer, or the read error that interrupted it.
func (sb *sharedBuffer) close(err error) {
	sb.mu.Lock()
	sb.closed = true
	sb.err = err
	sb.cond.Broadcast()
	sb.mu.Unlock()
}

// cursor is one destination's independent read position into a
// sharedBuffer. Each goroutine fanning out to a destination owns one.
type cursor struct {
	sb  *sharedBuffer
	pos int
}

func (c *cursor) Read(p []byte) (int, error) {
	c.sb.mu.Lock()
	for len(c.sb.buf) <= c.pos && !c.sb.closed {
		c.sb.cond.Wait()
	}
	if len(c.sb.buf) > c.pos {
		n := copy(p, c.sb.buf[c.pos:])
		c.pos += n
		c.sb.mu.Unlock()
		return n, nil
	}
	err := c.sb.err
	c.sb.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return 0, io.EOF
}
