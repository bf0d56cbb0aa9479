// Package wire implements the message protocol spoken between a renderer
// process and the broker.
//
// Every message starts with an 8-byte header: the target object id (u32)
// followed by a u32 holding the message size in the upper 16 bits and the
// opcode in the lower 16 bits, both in host byte order. Arguments are
// 32-bit aligned. File descriptors travel out of band as SCM_RIGHTS and are
// consumed in argument order.
package wire

// Well-known global objects. They exist on every connection without being
// bound.
const (
	DisplayID     uint32 = 1
	CompositorID  uint32 = 2
	BridgeID      uint32 = 3
	SHMID         uint32 = 4
	GPUBufferID   uint32 = 5
	DMABufID      uint32 = 6
	PoolManagerID uint32 = 7
	AudioID       uint32 = 8
	VideoPlaneID  uint32 = 9

	// FirstClientID is the lowest id a client may allocate.
	FirstClientID uint32 = 16

	// FirstServerID is the lowest id the broker allocates for objects it
	// creates on its own (dmabuf params "created" buffers).
	FirstServerID uint32 = 0xff000000
)

// Display.
const (
	DisplaySync uint16 = 0

	DisplayEventError uint16 = 0
)

// Compositor and surface.
const (
	CompositorCreateSurface uint16 = 0

	SurfaceDestroy uint16 = 0
	SurfaceAttach  uint16 = 1
	SurfaceFrame   uint16 = 2
	SurfaceCommit  uint16 = 3

	CallbackEventDone   uint16 = 0
	CallbackEventFailed uint16 = 1
)

// Buffers.
const (
	BufferDestroy uint16 = 0

	BufferEventRelease uint16 = 0

	SHMCreateBuffer       uint16 = 0
	GPUBufferCreateBuffer uint16 = 0
)

// Bridge.
const (
	BridgeInitialize uint16 = 0
	BridgeConnect    uint16 = 1

	BridgeEventImplementationInfo uint16 = 0
	BridgeEventConnected          uint16 = 1
)

// Implementation kinds announced by the bridge.
const (
	ImplementationWayland    uint32 = 0
	ImplementationDMABufPool uint32 = 1
)

// Multi-plane buffers.
const (
	DMABufCreateParams       uint16 = 0
	DMABufGetDefaultFeedback uint16 = 1

	ParamsDestroy     uint16 = 0
	ParamsAdd         uint16 = 1
	ParamsCreate      uint16 = 2
	ParamsCreateImmed uint16 = 3

	ParamsEventCreated uint16 = 0
	ParamsEventFailed  uint16 = 1

	FeedbackDestroy uint16 = 0

	FeedbackEventFormatTable uint16 = 0
	FeedbackEventDone        uint16 = 1
)

// Buffer pool.
const (
	PoolManagerCreatePool uint16 = 0

	PoolCreateBuffer  uint16 = 0
	PoolGetDMABufData uint16 = 1
	PoolDestroy       uint16 = 2

	DMABufDataRequest uint16 = 0

	DMABufDataEventAttributes uint16 = 0
	DMABufDataEventPlane      uint16 = 1
	DMABufDataEventComplete   uint16 = 2
)

// Side channels.
const (
	AudioStreamStarted uint16 = 0
	AudioStreamPacket  uint16 = 1
	AudioStreamStopped uint16 = 2
	AudioStreamPaused  uint16 = 3
	AudioStreamResumed uint16 = 4

	PacketExportDestroy      uint16 = 0
	PacketExportEventRelease uint16 = 0

	VideoPlaneCreateUpdate uint16 = 0
	VideoPlaneEndOfStream  uint16 = 1

	VideoUpdateDestroy      uint16 = 0
	VideoUpdateEventRelease uint16 = 0
)

// Display error codes.
const (
	ErrInvalidObject  uint32 = 0
	ErrInvalidMethod  uint32 = 1
	ErrNoMemory       uint32 = 2
	ErrImplementation uint32 = 3
)

// Shared-memory error codes.
const (
	SHMErrInvalidFormat uint32 = 0
	SHMErrInvalidStride uint32 = 1
	SHMErrInvalidFD     uint32 = 2
)

// GPU buffer error codes.
const (
	GPUBufferErrInvalidDimensions uint32 = 0
	GPUBufferErrInvalidFD         uint32 = 1
)

// Multi-plane params error codes.
const (
	ParamsErrAlreadyUsed       uint32 = 0
	ParamsErrPlaneIdx          uint32 = 1
	ParamsErrPlaneSet          uint32 = 2
	ParamsErrIncomplete        uint32 = 3
	ParamsErrInvalidFormat     uint32 = 4
	ParamsErrInvalidDimensions uint32 = 5
	ParamsErrOutOfBounds       uint32 = 6
	ParamsErrInvalidBuffer     uint32 = 7
)
