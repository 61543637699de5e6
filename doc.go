// Package cachegate implements the client-side reply engine of an HTTP
// caching proxy: the per-request decision machine that picks
// hit/revalidate/miss/purge/deny and streams the chosen response back to
// the caller with corrected headers.
//
// The engine itself never touches a socket, a disk, or an origin
// connection. Those live behind the Store, Forwarding, AccessChecker and
// Neighbors interfaces in this package; concrete implementations are
// provided under the store and neighbors subpackages.
package cachegate
