// Package engine declares the browser-engine surface the protocol layer
// drives: partitions, tabs, content channels, network channels and
// browser preferences.
//
// The protocol layer never renders, lays out or stores anything itself.
// Implementations live in sub-packages; headless is the in-process one.
package engine
