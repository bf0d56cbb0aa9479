package broker

import (
	"errors"

	"github.com/gogpu/viewbackend/dmabuf"
	"github.com/gogpu/viewbackend/internal/wire"
	"github.com/gogpu/viewbackend/surface"
)

type shmGlobal struct{ global }

func (shmGlobal) dispatch(c *conn, d *wire.Decoder) error {
	if d.Opcode() != wire.SHMCreateBuffer {
		return invalidMethod(d)
	}
	id := d.Uint32()
	fd := d.FD()
	size := d.Int32()
	offset := d.Int32()
	width := d.Int32()
	height := d.Int32()
	stride := d.Int32()
	format := d.Uint32()
	if err := d.Err(); err != nil {
		_ = fd.Close()
		return err
	}
	if err := c.checkNewID(id); err != nil {
		_ = fd.Close()
		return err
	}

	view, err := surface.MapSHM(fd, size, offset, width, height, stride, format)
	switch {
	case errors.Is(err, surface.ErrInvalidFormat):
		return wire.Errorf(wire.SHMID, wire.SHMErrInvalidFormat, "%v", err)
	case errors.Is(err, surface.ErrInvalidStride):
		return wire.Errorf(wire.SHMID, wire.SHMErrInvalidStride, "%v", err)
	case err != nil:
		// ErrInvalidFD and ErrMapFailed.
		return wire.Errorf(wire.SHMID, wire.SHMErrInvalidFD, "%v", err)
	}
	c.objects[id] = newBufferResource(c, id, func(release func()) *surface.Buffer {
		return surface.NewSharedMemoryBuffer(id, view, release)
	})
	return nil
}

type gpuBufferGlobal struct{ global }

func (gpuBufferGlobal) dispatch(c *conn, d *wire.Decoder) error {
	if d.Opcode() != wire.GPUBufferCreateBuffer {
		return invalidMethod(d)
	}
	id := d.Uint32()
	fd := d.FD()
	width := d.Int32()
	height := d.Int32()
	stride := d.Uint32()
	format := d.Uint32()
	if err := d.Err(); err != nil {
		_ = fd.Close()
		return err
	}
	if err := c.checkNewID(id); err != nil {
		_ = fd.Close()
		return err
	}
	if width < 1 || height < 1 {
		_ = fd.Close()
		return wire.Errorf(wire.GPUBufferID, wire.GPUBufferErrInvalidDimensions,
			"invalid dimensions %dx%d", width, height)
	}
	o := surface.Opaque{FD: fd, Width: width, Height: height, Stride: stride, Format: format}
	c.objects[id] = newBufferResource(c, id, func(release func()) *surface.Buffer {
		return surface.NewOpaqueBuffer(id, o, release)
	})
	return nil
}

type dmabufGlobal struct{ global }

func (dmabufGlobal) dispatch(c *conn, d *wire.Decoder) error {
	switch d.Opcode() {
	case wire.DMABufCreateParams:
		id := d.Uint32()
		if d.Err() != nil {
			return d.Err()
		}
		return c.claim(id, &paramsResource{id: id, p: dmabuf.NewParams()})

	case wire.DMABufGetDefaultFeedback:
		id := d.Uint32()
		if d.Err() != nil {
			return d.Err()
		}
		if err := c.claim(id, feedbackResource{id: id}); err != nil {
			return err
		}
		type formatTabler interface {
			FormatTable() *dmabuf.FormatTable
		}
		if ft, ok := c.b.imp.(formatTabler); ok {
			if table := ft.FormatTable(); table != nil {
				c.send(wire.NewMessage(id, wire.FeedbackEventFormatTable).FD(table.FD()).Uint32(table.Size()))
			}
		}
		c.send(wire.NewMessage(id, wire.FeedbackEventDone))
		return nil

	default:
		return invalidMethod(d)
	}
}

type feedbackResource struct {
	id uint32
}

func (r feedbackResource) dispatch(c *conn, d *wire.Decoder) error {
	if d.Opcode() != wire.FeedbackDestroy {
		return invalidMethod(d)
	}
	c.remove(r.id)
	return nil
}

func (feedbackResource) destroy(*conn) {}

// paramsResource collects the planes of a dmabuf under construction.
type paramsResource struct {
	id uint32
	p  *dmabuf.Params
}

func (r *paramsResource) dispatch(c *conn, d *wire.Decoder) error {
	switch d.Opcode() {
	case wire.ParamsDestroy:
		r.p.Close()
		c.remove(r.id)
		return nil

	case wire.ParamsAdd:
		fd := d.FD()
		index := d.Uint32()
		offset := d.Uint32()
		stride := d.Uint32()
		modifier := d.Uint64()
		if err := d.Err(); err != nil {
			_ = fd.Close()
			return err
		}
		return r.paramsError(r.p.Add(fd, index, offset, stride, modifier))

	case wire.ParamsCreate:
		width := d.Int32()
		height := d.Int32()
		format := d.Uint32()
		flags := d.Uint32()
		if d.Err() != nil {
			return d.Err()
		}
		attrs, err := r.build(c, width, height, format, flags)
		if err != nil {
			return err
		}
		if attrs == nil {
			c.send(wire.NewMessage(r.id, wire.ParamsEventFailed))
			return nil
		}
		id := c.allocServerID()
		c.objects[id] = newBufferResource(c, id, func(release func()) *surface.Buffer {
			return surface.NewDMABufBuffer(id, attrs, release)
		})
		c.send(wire.NewMessage(r.id, wire.ParamsEventCreated).Uint32(id))
		return nil

	case wire.ParamsCreateImmed:
		id := d.Uint32()
		width := d.Int32()
		height := d.Int32()
		format := d.Uint32()
		flags := d.Uint32()
		if d.Err() != nil {
			return d.Err()
		}
		if err := c.checkNewID(id); err != nil {
			return err
		}
		attrs, err := r.build(c, width, height, format, flags)
		if err != nil {
			return err
		}
		if attrs == nil {
			return wire.Errorf(r.id, wire.ParamsErrInvalidBuffer, "importing the supplied dmabufs failed")
		}
		c.objects[id] = newBufferResource(c, id, func(release func()) *surface.Buffer {
			return surface.NewDMABufBuffer(id, attrs, release)
		})
		return nil

	default:
		return invalidMethod(d)
	}
}

// build finalizes the descriptor. A malformed descriptor is a protocol
// error; one the importer cannot take yields nil attributes and no error.
func (r *paramsResource) build(c *conn, width, height int32, format, flags uint32) (*dmabuf.Attributes, error) {
	attrs, err := r.p.Build(width, height, format, flags)
	if err != nil {
		return nil, r.paramsError(err)
	}
	type acceptor interface {
		AcceptDMABuf(*dmabuf.Attributes) error
	}
	if a, ok := c.b.imp.(acceptor); ok {
		err = a.AcceptDMABuf(attrs)
	} else {
		err = attrs.ValidateModifiers()
	}
	if err != nil {
		c.log.Warn("dmabuf import rejected", "object", r.id, "err", err)
		attrs.Close()
		return nil, nil
	}
	return attrs, nil
}

func (r *paramsResource) paramsError(err error) error {
	if err == nil {
		return nil
	}
	code := wire.ErrImplementation
	switch {
	case errors.Is(err, dmabuf.ErrAlreadyUsed):
		code = wire.ParamsErrAlreadyUsed
	case errors.Is(err, dmabuf.ErrPlaneIndex):
		code = wire.ParamsErrPlaneIdx
	case errors.Is(err, dmabuf.ErrPlaneSet):
		code = wire.ParamsErrPlaneSet
	case errors.Is(err, dmabuf.ErrIncomplete):
		code = wire.ParamsErrIncomplete
	case errors.Is(err, dmabuf.ErrInvalidDimensions):
		code = wire.ParamsErrInvalidDimensions
	case errors.Is(err, dmabuf.ErrOutOfBounds):
		code = wire.ParamsErrOutOfBounds
	}
	return wire.Errorf(r.id, code, "%v", err)
}

func (r *paramsResource) destroy(*conn) {
	r.p.Close()
}
