package protocol

// Policy ranges.
const (
	MinSaveRate uint8 = 1  // 1%
	MaxSaveRate uint8 = 20 // 20%

	MinFeeRate uint8 = 0 // 0%
	MaxFeeRate uint8 = 5 // 5%

	MinLockDays uint8 = 1
	MaxLockDays uint8 = 30
)

// Amount limits, in lamports.
const (
	MinDelegationLamports uint64 = 1_000_000     // 0.001 SOL
	MaxDelegationLamports uint64 = 5_000_000_000 // 5 SOL

	MinTradeSize uint64 = 1_000_000     // 0.001 SOL
	MaxTradeSize uint64 = 1_000_000_000 // 1 SOL

	MaxSavingsPerDay uint64 = 100_000_000_000 // 100 SOL
)

// Subscription and emergency withdrawal policy.
const (
	SubscriptionFeeLamports uint64 = 250_000_000 // 0.25 SOL
	SubscriptionPeriodDays  uint8  = 7

	// EmergencyFeeRate is the percentage skimmed off an emergency
	// withdrawal in exchange for bypassing the time lock.
	EmergencyFeeRate uint8 = 5
)

const (
	secondsPerDay int64 = 24 * 60 * 60

	// feeCollectionCooldownSeconds is the minimum spacing between two
	// admin fee collections.
	feeCollectionCooldownSeconds int64 = 24 * 60 * 60
)
