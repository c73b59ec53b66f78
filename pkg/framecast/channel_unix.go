//go:build unix

package framecast

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// channel is one attachment to a named channel: the mapped region plus the
// lock and both events. The header is private; payload fields are only
// reachable through a frameView handed out by withLock.
type channel struct {
	names       Names
	region      *segment
	mutex       *namedMutex
	frameEvent  *namedEvent
	clientEvent *namedEvent
	hdr         *Header
	slot        []byte
}

// frameView is the lock-scoped access token to the header and frame slot.
// It is invalidated when the withLock callback returns.
type frameView struct {
	hdr  *Header
	slot []byte
}

// withLock runs fn with exclusive access to the frame slot. It reports false
// without calling fn if the lock was not acquired within timeout. The lock is
// released on every exit path, including a panic in fn.
func (c *channel) withLock(timeout time.Duration, fn func(v *frameView)) bool {
	if !c.mutex.lock(timeout) {
		return false
	}
	v := &frameView{hdr: c.hdr, slot: c.slot}
	defer func() {
		v.hdr, v.slot = nil, nil
		c.mutex.unlock()
	}()
	fn(v)
	return true
}

// createChannel allocates every named object and returns a channel whose
// header is fully initialized and published.
func createChannel(names Names, g Geometry, pid uint32) (_ *channel, err error) {
	region, err := claimRegion(names.Region, g.RegionSize(), defaultPerm)
	if err != nil {
		return nil, err
	}
	c := &channel{names: names, region: region}
	defer func() {
		if err != nil {
			c.unlink()
			c.close()
		}
	}()

	mutexSeg, err := createWord(names.Mutex, defaultPerm)
	if err != nil {
		return nil, newError(CodeResourceExhausted, "create", "cannot allocate mutex", err)
	}
	c.mutex = newNamedMutex(mutexSeg)

	frameSeg, err := createWord(names.FrameEvent, defaultPerm)
	if err != nil {
		return nil, newError(CodeResourceExhausted, "create", "cannot allocate frame event", err)
	}
	c.frameEvent = newNamedEvent(frameSeg)

	clientSeg, err := createWord(names.ClientEvent, defaultPerm)
	if err != nil {
		return nil, newError(CodeResourceExhausted, "create", "cannot allocate client event", err)
	}
	c.clientEvent = newNamedEvent(clientSeg)

	c.hdr = initHeader(region.mem, g, pid)
	c.slot = region.mem[HeaderSize : HeaderSize+g.FrameSize()]
	atomic.StoreUint32(&c.hdr.Magic, Magic)
	return c, nil
}

// openChannel attaches to an existing channel and validates it. Any failure
// releases everything opened so far.
func openChannel(names Names) (_ *channel, err error) {
	const op = "connect"
	region, err := openRegion(names.Region)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError(CodeChannelNotFound, op, ErrChannelNotFound.Message, err)
		}
		return nil, newError(CodeResourceExhausted, op, "cannot map region", err)
	}
	c := &channel{names: names, region: region, hdr: headerAt(region.mem)}
	defer func() {
		if err != nil {
			c.close()
		}
	}()

	switch magic := atomic.LoadUint32(&c.hdr.Magic); {
	case magic == 0:
		return nil, newError(CodeChannelNotFound, op, "region not initialized yet", nil)
	case magic != Magic || c.hdr.Version != ProtocolVersion:
		return nil, newError(CodeIncompatibleChannel, op,
			fmt.Sprintf("magic %#x version %d, want %#x version %d", magic, c.hdr.Version, Magic, ProtocolVersion), nil)
	}

	g := c.hdr.geometry()
	if g.Validate() != nil || c.hdr.DataOffset != HeaderSize || g.RegionSize() > len(region.mem) {
		return nil, newError(CodeIncompatibleChannel, op, "header geometry does not fit region", nil)
	}
	c.slot = region.mem[HeaderSize : HeaderSize+g.FrameSize()]

	if atomic.LoadUint32(&c.hdr.ServerPID) == 0 || !region.ownerAlive() {
		return nil, newError(CodeChannelNotFound, op, "channel has no live server", nil)
	}

	mutexSeg, err := openWord(names.Mutex)
	if err != nil {
		return nil, newError(CodeChannelNotFound, op, "mutex missing", err)
	}
	c.mutex = newNamedMutex(mutexSeg)

	frameSeg, err := openWord(names.FrameEvent)
	if err != nil {
		return nil, newError(CodeChannelNotFound, op, "frame event missing", err)
	}
	c.frameEvent = newNamedEvent(frameSeg)

	clientSeg, err := openWord(names.ClientEvent)
	if err != nil {
		return nil, newError(CodeChannelNotFound, op, "client event missing", err)
	}
	c.clientEvent = newNamedEvent(clientSeg)
	return c, nil
}

func (c *channel) clientCount() int32 {
	return atomic.LoadInt32(&c.hdr.ClientCount)
}

func (c *channel) incrementClients() int32 {
	return atomic.AddInt32(&c.hdr.ClientCount, 1)
}

// decrementClients never takes the counter below zero.
func (c *channel) decrementClients() int32 {
	for {
		cur := atomic.LoadInt32(&c.hdr.ClientCount)
		if cur <= 0 {
			return 0
		}
		if atomic.CompareAndSwapInt32(&c.hdr.ClientCount, cur, cur-1) {
			return cur - 1
		}
	}
}

// peek reads metadata without the lock. Fields may belong to different
// frames; never use it to interpret payload.
func (c *channel) peek() FrameInfo {
	return FrameInfo{
		Geometry:    c.hdr.geometry(),
		Stride:      c.hdr.Stride,
		Capacity:    len(c.slot),
		FrameNumber: atomic.LoadUint64(&c.hdr.FrameNumber),
		ServerPID:   atomic.LoadUint32(&c.hdr.ServerPID),
		ClientCount: atomic.LoadInt32(&c.hdr.ClientCount),
	}
}

// unlink removes every name so new attachments fail.
func (c *channel) unlink() error {
	var errs []error
	for _, seg := range c.segments() {
		if err := seg.unlink(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// close releases this process's mappings and handles. The region goes last
// so the owner lock is held until everything else is gone.
func (c *channel) close() error {
	var errs []error
	segs := c.segments()
	for i := len(segs) - 1; i >= 0; i-- {
		if err := segs[i].close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.hdr, c.slot = nil, nil
	return errors.Join(errs...)
}

func (c *channel) segments() []*segment {
	segs := []*segment{c.region}
	if c.mutex != nil {
		segs = append(segs, c.mutex.seg)
	}
	if c.frameEvent != nil {
		segs = append(segs, c.frameEvent.seg)
	}
	if c.clientEvent != nil {
		segs = append(segs, c.clientEvent.seg)
	}
	return segs
}
