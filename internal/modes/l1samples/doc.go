// Package l1samples owns Layer 1 (Samples) of the Mode S receiver.
//
// Responsibilities: the hardware capability boundary (Driver, Device), the
// per-backend adapters (rtl_tcp, recorded IQ files, RTP multicast, pcap
// replay) and the Source that turns a device's raw interleaved IQ bytes into
// fixed-size SampleBlocks. Key types: SampleBlock, SampleFormat, Source.
//
// Dependency rule: L1 has no inward dependencies on higher layers.
package l1samples
