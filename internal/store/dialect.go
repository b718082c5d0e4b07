package store

import (
	"strconv"
	"strings"

	"verdandi/internal/config"
)

type dialect struct {
	name   string
	driver string
	schema string
	// claimLock is appended to the claim subquery so concurrent pollers skip
	// rows another transaction is already claiming.
	claimLock string
	numbered  bool
}

var (
	sqliteDialect = dialect{
		name:   config.StoreSQLite,
		driver: "sqlite",
		schema: schemaSQLite,
	}
	postgresDialect = dialect{
		name:      config.StorePostgres,
		driver:    "pgx",
		schema:    schemaPostgres,
		claimLock: " FOR UPDATE SKIP LOCKED",
		numbered:  true,
	}
)

// rebind rewrites ? placeholders into $n for dialects that need it. Queries in
// this package never contain literal question marks.
func (d dialect) rebind(query string) string {
	if !d.numbered || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
