package enum

type KVStoreType string
type PayoutExecutorType string
type ActivityBackend string
type RoundState string

const (
	KVStoreTypeBadger KVStoreType = "badger"
	KVStoreTypeConsul KVStoreType = "consul"
)

const (
	PayoutExecutorRelay  PayoutExecutorType = "relay"
	PayoutExecutorSolana PayoutExecutorType = "solana"
	PayoutExecutorNoop   PayoutExecutorType = "noop"
)

const (
	ActivityBackendKV       ActivityBackend = "kv"
	ActivityBackendPostgres ActivityBackend = "postgres"
)

const (
	RoundStateAccepting RoundState = "accepting"
	RoundStateSettling  RoundState = "settling"
)
