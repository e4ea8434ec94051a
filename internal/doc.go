// Package internal holds token material helpers shared by the engine and
// its stores: session identifiers, opaque token encoding, and secret
// hashing. Nothing here is part of the public API.
package internal
