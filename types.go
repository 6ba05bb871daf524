package ppindex

import "github.com/jward/ppindex/internal/store"

// Aliases for the store types that appear in the QueryBuilder API, so
// callers outside the module can name them.

type Store = store.Store
type File = store.File
type Unit = store.Unit
type Symbol = store.Symbol
