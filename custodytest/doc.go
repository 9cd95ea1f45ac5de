/*
Package custodytest provides helpers for testing code that uses the custody
coordinator: deterministic keys, a programmable chain gateway and a clock.
*/
package custodytest
