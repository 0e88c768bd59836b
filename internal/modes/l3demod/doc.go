// Package l3demod owns Layer 3 (Demodulation) of the Mode S receiver.
//
// Responsibilities: pulse-position decoding of a Burst into a soft
// BitSequence, one confidence value per bit.
//
// Dependency rule: L3 may depend on L1-L2, but never on L4+.
package l3demod
