// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package surface

// FrameCallback is a one-shot frame subscription. Exactly one of the done
// and failed notifications is delivered.
type FrameCallback struct {
	id     uint32
	done   func()
	failed func()
	fired  bool
}

// NewFrameCallback creates a subscription. Either function may be nil.
func NewFrameCallback(id uint32, done, failed func()) *FrameCallback {
	return &FrameCallback{id: id, done: done, failed: failed}
}

func (c *FrameCallback) ID() uint32 { return c.id }

// Fired reports whether the callback was resolved or failed.
func (c *FrameCallback) Fired() bool { return c.fired }

// Resolve delivers done. It returns false if the callback already fired.
func (c *FrameCallback) Resolve() bool {
	return c.fire(c.done)
}

// Fail delivers failed. It returns false if the callback already fired.
func (c *FrameCallback) Fail() bool {
	return c.fire(c.failed)
}

func (c *FrameCallback) fire(fn func()) bool {
	if c.fired {
		return false
	}
	c.fired = true
	if fn != nil {
		fn()
	}
	return true
}
