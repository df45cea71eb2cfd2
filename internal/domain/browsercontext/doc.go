/*
Package browsercontext tracks isolated browsing profiles.

A browser context is a public id ("1", "2", ...) bound to exactly one
engine partition. Ids are never reused within a process. Partitions named
with the registry's prefix are owned by it; any found at startup are
leftovers from an unclean shutdown and are discarded.

Removing a context does not close its tabs.
*/
package browsercontext
