// Package flows contains the state-machine logic of each authentication
// operation, expressed against injected dependency sets. The root engine
// wires concrete stores, codecs and emitters into these deps; the flows stay
// free of storage and transport imports so they can be tested in isolation.
package flows
