package bridge

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/gogpu/viewbackend/dmabuf"
	"github.com/gogpu/viewbackend/internal/wire"
)

// DMABuf describes a multi-plane buffer to create. Plane descriptors stay
// owned by the caller.
type DMABuf struct {
	Width  int32
	Height int32
	Format uint32
	Flags  uint32
	Planes []dmabuf.Plane
}

func (c *Client) sendParams(desc DMABuf) (uint32, error) {
	if len(desc.Planes) == 0 || len(desc.Planes) > dmabuf.MaxPlanes {
		return 0, fmt.Errorf("bridge: %d planes: %w", len(desc.Planes), dmabuf.ErrIncomplete)
	}
	pid := c.newID()
	if err := c.send(wire.NewMessage(wire.DMABufID, wire.DMABufCreateParams).Uint32(pid)); err != nil {
		return 0, err
	}
	for i, p := range desc.Planes {
		m := wire.NewMessage(pid, wire.ParamsAdd).
			FD(p.FD).Uint32(uint32(i)).Uint32(p.Offset).Uint32(p.Stride).Uint64(p.Modifier)
		if err := c.send(m); err != nil {
			return 0, err
		}
	}
	return pid, nil
}

type created struct {
	id  uint32
	err error
}

// CreateDMABuf creates a multi-plane buffer and waits for the broker to
// accept it. A rejected import returns ErrBufferFailed.
func (c *Client) CreateDMABuf(ctx context.Context, desc DMABuf) (uint32, error) {
	pid, err := c.sendParams(desc)
	if err != nil {
		return 0, err
	}
	ch := make(chan created, 1)
	c.handle(pid, func(d *wire.Decoder) {
		c.forget(pid)
		if d.Opcode() != wire.ParamsEventCreated {
			ch <- created{err: ErrBufferFailed}
			return
		}
		id := d.Uint32()
		c.handle(id, c.bufferHandler(id))
		ch <- created{id: id}
	})
	m := wire.NewMessage(pid, wire.ParamsCreate).
		Int32(desc.Width).Int32(desc.Height).Uint32(desc.Format).Uint32(desc.Flags)
	if err := c.send(m); err != nil {
		c.forget(pid)
		return 0, err
	}
	res, err := wait(ctx, c, ch)
	if err != nil {
		return 0, err
	}
	if err := c.send(wire.NewMessage(pid, wire.ParamsDestroy)); err != nil {
		return 0, err
	}
	return res.id, res.err
}

// CreateDMABufImmed creates a multi-plane buffer without waiting. A
// rejected import ends the connection with a protocol error.
func (c *Client) CreateDMABufImmed(desc DMABuf) (uint32, error) {
	pid, err := c.sendParams(desc)
	if err != nil {
		return 0, err
	}
	id := c.newID()
	c.handle(id, c.bufferHandler(id))
	m := wire.NewMessage(pid, wire.ParamsCreateImmed).
		Uint32(id).Int32(desc.Width).Int32(desc.Height).Uint32(desc.Format).Uint32(desc.Flags)
	if err := c.send(m); err != nil {
		c.forget(id)
		return 0, err
	}
	if err := c.send(wire.NewMessage(pid, wire.ParamsDestroy)); err != nil {
		return 0, err
	}
	return id, nil
}

// DefaultFeedback fetches the format/modifier pairs the broker imports.
// It returns nil when the broker publishes no table.
func (c *Client) DefaultFeedback(ctx context.Context) ([]dmabuf.FormatModifier, error) {
	id := c.newID()
	ch := make(chan created, 1)
	var (
		pairs []dmabuf.FormatModifier
		ferr  error
	)
	c.handle(id, func(d *wire.Decoder) {
		switch d.Opcode() {
		case wire.FeedbackEventFormatTable:
			fd := d.FD()
			size := d.Uint32()
			if d.Err() != nil {
				_ = fd.Close()
				return
			}
			defer fd.Close()
			buf := make([]byte, size)
			if _, err := unix.Pread(fd.Raw(), buf, 0); err != nil {
				ferr = fmt.Errorf("bridge: read format table: %w", err)
				return
			}
			pairs = dmabuf.DecodeTable(buf)
		case wire.FeedbackEventDone:
			c.forget(id)
			ch <- created{err: ferr}
		}
	})
	if err := c.send(wire.NewMessage(wire.DMABufID, wire.DMABufGetDefaultFeedback).Uint32(id)); err != nil {
		c.forget(id)
		return nil, err
	}
	res, err := wait(ctx, c, ch)
	if err != nil {
		return nil, err
	}
	if res.err != nil {
		return nil, res.err
	}
	if err := c.send(wire.NewMessage(id, wire.FeedbackDestroy)); err != nil {
		return nil, err
	}
	return pairs, nil
}
