// Package l4frames owns Layer 4 (Frames) of the Mode S receiver.
//
// Responsibilities: mapping a soft BitSequence onto a short (56 bit) or
// long (112 bit) frame, the Mode S 24-bit parity check, single-bit error
// correction gated on bit confidence, and extraction of the few fields
// needed to classify a frame (DF, CA, AA, ME type code).
// Key types: Decoder, DecodedFrame, Integrity.
//
// Dependency rule: L4 may depend on L1-L3, but never on L5+. Decoding is
// stateless per frame; the only shared state is the observability counters.
package l4frames
