// Package pipeline is the composition root of the Mode S receiver.
//
// Each Receiver owns one device and runs Layers 1-4 (samples, preamble,
// demodulation, frames) as a single tight loop. Decoded frames from every
// receiver meet on one bounded channel; a merger goroutine runs Layer 5
// (dedup) and Layer 6 (publish) in arrival order.
//
// Shutdown: cancelling the context closes every source, each receiver
// flushes its detector, the merger drains what is in flight and the
// publisher closes its outbound channel. A DeviceError stops every
// receiver and is returned from Run.
package pipeline
