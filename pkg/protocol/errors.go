package protocol

import "errors"

// Every failure mode of the protocol surfaces as exactly one of these
// sentinels, possibly wrapped with call-site context. Callers classify with
// errors.Is; the HTTP layer maps them to stable string codes via ErrorCode.
var (
	ErrInvalidSaveRate         = errors.New("save rate must be between 1 and 20")
	ErrInvalidFeeRate          = errors.New("fee rate must be between 0 and 5")
	ErrInvalidLockPeriod       = errors.New("lock period must be between 1 and 30 days")
	ErrInvalidDelegationAmount = errors.New("delegation amount out of allowed range")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrInvalidSaveAmount       = errors.New("invalid save amount")
	ErrVaultLocked             = errors.New("vault is locked")
	ErrEmptyVault              = errors.New("vault is empty")
	ErrVaultAlreadyInitialized = errors.New("vault already initialized")
	ErrVaultInactive           = errors.New("vault is inactive")
	ErrProtocolPaused          = errors.New("protocol is paused")
	ErrEmergencyModeActive     = errors.New("emergency mode is active")
	ErrReentrancyDetected      = errors.New("reentrancy detected")
	ErrDelegationExpired       = errors.New("delegation has expired")
	ErrDailySavingsLimit       = errors.New("daily savings limit exceeded")
	ErrCollectionCooldown      = errors.New("fee collection cooldown has not elapsed")
	ErrTradeTooSmall           = errors.New("trade amount below minimum")
	ErrTradeTooLarge           = errors.New("trade amount above maximum")
	ErrArithmeticOverflow      = errors.New("arithmetic overflow")
	ErrArithmeticUnderflow     = errors.New("arithmetic underflow")
)

var errorCodes = map[error]string{
	ErrInvalidSaveRate:         "invalid_save_rate",
	ErrInvalidFeeRate:          "invalid_fee_rate",
	ErrInvalidLockPeriod:       "invalid_lock_period",
	ErrInvalidDelegationAmount: "invalid_delegation_amount",
	ErrUnauthorized:            "unauthorized",
	ErrInvalidSaveAmount:       "invalid_save_amount",
	ErrVaultLocked:             "vault_locked",
	ErrEmptyVault:              "empty_vault",
	ErrVaultAlreadyInitialized: "vault_already_initialized",
	ErrVaultInactive:           "vault_inactive",
	ErrProtocolPaused:          "protocol_paused",
	ErrEmergencyModeActive:     "emergency_mode_active",
	ErrReentrancyDetected:      "reentrancy_detected",
	ErrDelegationExpired:       "delegation_expired",
	ErrDailySavingsLimit:       "daily_savings_limit_exceeded",
	ErrCollectionCooldown:      "collection_cooldown",
	ErrTradeTooSmall:           "trade_too_small",
	ErrTradeTooLarge:           "trade_too_large",
	ErrArithmeticOverflow:      "arithmetic_overflow",
	ErrArithmeticUnderflow:     "arithmetic_underflow",
	ErrNotFound:                "not_found",
}

// ErrorCode returns the stable string code for a protocol error, or
// "internal" if err does not wrap a protocol sentinel.
func ErrorCode(err error) string {
	for sentinel, code := range errorCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return "internal"
}
