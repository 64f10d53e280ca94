package constant

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	LamportsPerSOL  = 1_000_000_000
	SOLDecimals     = 9
	DisplayDecimals = 3
	ChanceDecimals  = 1

	DefaultRoundSeconds      = 60
	DefaultMaxWinnersHistory = 10
	DefaultHouseEdge         = 5
	DefaultMinWinChance      = 1
	DefaultFavorFactor       = 2

	KVPrefixRooms    = "rooms"
	KVKeyBiasConfig  = "admin_config"
	KVKeyWinners     = "winners"
	KVPrefixActivity = "activity"
	KVPrefixPayouts  = "payouts"
	KVPrefixRelay    = "relay_payouts"

	EventSubjectPrefix = "jackpot.events"
	EventStreamName    = "jackpot_events"
	ManualReviewPrefix = "payouts:manual_review"
)
