package types

// Migration is a single schema change, identified by ID and applied in order.
type Migration struct {
	ID  string
	SQL string
}
