// Package l6publish owns Layer 6 (Publish) of the Mode S receiver.
//
// Responsibilities: the record wire encoding (protobuf wire format, schema
// in api/modes/v1/record.proto) and the bounded outbound channel with its
// backpressure policy.
// Key types: Record, Publisher, PublishedRecord, Policy.
//
// Dependency rule: L6 may depend on L1-L5.
package l6publish
