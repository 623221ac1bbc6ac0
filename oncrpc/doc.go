// Package oncrpc implements the client side of ONC-RPC version 2 (RFC 5531) over a
// connection-oriented stream, plus the port mapper GETPORT query (RFC 1833, version 2).
//
// Messages are framed with the record marking standard: every record is sent as one or more
// fragments, each prefixed by a 4-byte header whose top bit marks the last fragment of the
// record and whose low 31 bits carry the fragment length.
//
// Only one call may be in flight on a Client at a time. Calls are matched to replies by
// their transaction identifier (xid); a reply for any other xid means the stream is no
// longer synchronized and the Client refuses further calls.
//
// A call whose deadline elapses before any byte of its reply arrived is remembered as
// abandoned: when its reply shows up later it is discarded, and the stream remains usable.
package oncrpc
