// Package framecast broadcasts the latest video frame from one producer
// process to any number of consumer processes through shared memory.
//
// # Overview
//
// A channel is four named files in a shared-memory directory (default
// /dev/shm):
//
//	<channel>.frame         header + single frame slot
//	<channel>.mutex         futex word guarding the header and slot
//	<channel>.frame-event   generation counter bumped on every publish
//	<channel>.client-event  generation counter bumped on connect/disconnect
//
// The slot is overwritten in place on every publish. There is no queue and
// no per-client history: a consumer sees whatever frame is current when it
// reads, and compares frame numbers to decide whether it is new.
//
// # Producer
//
//	srv, _ := framecast.NewServer(framecast.Config{
//		Geometry: framecast.Geometry{Width: 640, Height: 480, Format: framecast.FormatRGB24},
//	})
//	if err := srv.Create(); err != nil { ... }
//	defer srv.Close()
//	for frame := range frames {
//		_ = srv.Publish(frame, ticks) // ErrLockTimeout means dropped
//	}
//
// # Consumer
//
//	cli, _ := framecast.NewClient(framecast.Config{})
//	if err := cli.Connect(); err != nil { ... } // ErrChannelNotFound, ErrIncompatibleChannel
//	defer cli.Disconnect()
//	buf := make([]byte, info.Capacity)
//	for {
//		if !cli.WaitForFrame(time.Second) {
//			continue
//		}
//		f, err := cli.ReadFrame(buf)
//		switch {
//		case err == nil:
//			use(buf[:f.Copied])
//		case errors.Is(err, framecast.ErrStaleServer):
//			reconnect()
//		}
//	}
//
// # Liveness
//
// The server holds an exclusive flock on the region for its lifetime. That
// lock is the "already exists" signal for a second server, and lets clients
// tell a crashed server (lock released, pid still set) from a live one.
// Clients that crash without Disconnect are not detected; the shared client
// count overcounts until the channel is recreated.
package framecast
