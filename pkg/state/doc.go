// Package state defines the persistence contract for visitor assignments and
// the stores shipped with the module.
//
// A Store loads and saves one assignment map for one Ref. CookieStore keeps
// the map in the visitor's browser (the default, "assignedVariants" cookie,
// 24 hour retention); MemoryStore keeps it in process and is meant for tests
// and examples.
//
// Data flow:
//
//	gateway -> Store.Load -> variants.Resolver.Resolve -> Mutate(existing + new) -> Store.Save
//
// Deterministic keys:
//
//	Ref.Identifier() returns "<domain>/<visitor>" and is what keyed stores use.
//	Cookie stores are already scoped to one browser and ignore it.
package state
