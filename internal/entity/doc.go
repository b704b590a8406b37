// Package entity defines the rows stored by Tally Core and their CRUD helpers.
//
// Each table-backed struct is marked with //tally:entity and tags its columns
// with db:"column" (one of them db:"column,pk"). cmd/entitygen turns those
// structs into entity_gen.go, which provides for every type T:
//
//	NewT(...) *T
//	(*T).Upsert(ctx, db) error
//	(*T).Delete(ctx, db) error
//	RetrieveT(ctx, db, pk) (*T, error)      // nil when absent
//	RetrieveTMany(ctx, db, pks) ([]T, error)
//	RetrieveAllTs(ctx, db) ([]T, error)
//
// Table names are derived from the type name: snake_case with every inner
// word pluralised, so IdentityUser lives in identitys_users.
//
// All helpers take a DBTX, so they run unchanged on a *sql.Tx or directly on
// the *database.Conn handed to a Write or Read closure.
package entity

//go:generate go run ../../cmd/entitygen --dir . --out entity_gen.go
