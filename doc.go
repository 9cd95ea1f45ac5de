/*
Package superpool defines the interfaces and small value types shared by all
parts of the custody coordinator: key-value storage, request context
(logger, authenticated caller, clock), hex encoded identifiers and time.

The coordinator itself lives in x/multisig. Storage backends live in store,
chain gateways in gateway, and the HTTP surface in api.
*/
package superpool
