/*

Package gconf loads the daemon configuration.

Configuration is read from an optional file (TOML, YAML or JSON) and from
SUPERPOOL_ prefixed environment variables. It is divided into sections, one
per package, for example "multisig" or "chain". Each package owns a struct
describing its section and declares field names with mapstructure tags.

Environment variables name a value by its section and key, joined by an
underscore. SUPERPOOL_MULTISIG_PROPOSAL_TTL=48h overrides the proposal_ttl
value of the multisig section. Only keys with a declared default can be set
this way.

Addresses are written as 0x prefixed hex and durations as Go duration
strings.

*/
package gconf
