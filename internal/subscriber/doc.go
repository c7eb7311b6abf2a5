// Package subscriber tracks broadcast recipients and their delivery state.
//
// The Store interface is the registry the dispatch engine reads targets from
// and writes kick updates to. Two drivers ship in-tree: an in-memory map
// (default, also used in tests) and a SQLite file selected via Config.Driver.
package subscriber
