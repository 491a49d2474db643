// Package trace records what a scenario run observed: every event delivered
// to a listener, stamped with a logical sequence number and the scheduler
// tick it was delivered on.
//
// Traces are compared byte-for-byte against golden files, so they are
// serialized with MarshalCanonical: sorted object keys (UTF-16 order), NFC
// normalized strings, no HTML escaping and no insignificant whitespace.
package trace
