/*
Package batch implements MultiSend style batch encoding.

A batch packs a list of sub operations into a single payload, so that all
of them can be authorized with one set of owner approvals and executed as
one outer operation. Each sub operation is encoded as

  operation (1 byte) | target (20 bytes) | value (32 bytes, big endian)
  | data length (32 bytes, big endian) | data

and the encoded sub operations are concatenated in order.

The outer operation must be a delegate call to a MultiSend contract for the
batch to be all or nothing. A failing sub operation then reverts the whole
batch. Choosing the outer operation is the caller's responsibility.
*/
package batch
