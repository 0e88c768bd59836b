// Package l2preamble owns Layer 2 (Preamble) of the Mode S receiver.
//
// Responsibilities: converting IQ samples to magnitudes, matched-filter
// detection of the 8 µs Mode S preamble, the adaptive noise floor, and the
// carry-over buffer that lets a burst straddle two sample blocks.
// Key types: Detector, DetectorConfig, Burst.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
package l2preamble
