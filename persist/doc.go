// Package persist provides session.Persistence implementations.
//
// A Store encodes snapshots and hands the bytes to a Backend:
//
//	Memory  in-process
//	File    one file, replaced atomically by rename
//	Redis   one key, optional TTL
//
// Sealed wraps any Backend and encrypts the bytes at rest:
//
//	file, _ := persist.NewFile(path)
//	sealed, _ := persist.NewSealed(file, passphrase, path)
//	store, _ := persist.NewStore(sealed)
package persist
