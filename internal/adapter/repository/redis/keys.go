package redis

// Every key this service writes lives under one namespace so a shared redis
// can be flushed per service.
const namespace = "gocredit:"

type keyspace string

const (
	cacheKeys       keyspace = namespace + "cache:"
	idempotencyKeys keyspace = namespace + "idempotency:"
	collateralKeys  keyspace = namespace + "collateral:"
)

func (k keyspace) key(name string) string {
	return string(k) + name
}
