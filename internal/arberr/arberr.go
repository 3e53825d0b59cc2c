// Package arberr declares the sentinel error kinds shared across the
// arbitrage engine's components.
package arberr

import "errors"

var (
	// ErrMathOverflow is returned when a checked arithmetic operation would overflow U256.
	ErrMathOverflow = errors.New("math: overflow")
	// ErrMathUnderflow is returned when a checked subtraction would go negative.
	ErrMathUnderflow = errors.New("math: underflow")
	// ErrDivideByZero is returned when a computed denominator is zero.
	ErrDivideByZero = errors.New("math: divide by zero")
	// ErrNoLiquidity is returned when either side of a pair has a zero reserve.
	ErrNoLiquidity = errors.New("pair: no liquidity")
	// ErrTokenNotInPair is returned when a requested token is not one of a pair's two tokens.
	ErrTokenNotInPair = errors.New("pair: token not in pair")
	// ErrPairMissing is returned when a pair lookup misses the registry.
	ErrPairMissing = errors.New("registry: pair missing")
	// ErrProtocolMissing is returned when a protocol lookup misses the registry.
	ErrProtocolMissing = errors.New("registry: protocol missing")
	// ErrUnknownSelector is returned when a transaction's 4-byte selector matches no known function.
	ErrUnknownSelector = errors.New("decoder: unknown selector")
	// ErrAbiTypeMismatch is returned when decoded ABI arguments do not match the expected Go types.
	ErrAbiTypeMismatch = errors.New("decoder: abi type mismatch")
	// ErrDeadlineExpired is returned when a pending swap's deadline has already passed.
	ErrDeadlineExpired = errors.New("decoder: deadline expired")
	// ErrBoundViolated is returned when a computed amount violates a pending swap's min/max bound.
	ErrBoundViolated = errors.New("decoder: bound violated")
	// ErrNoPath is returned when path search finds no cycle back to the start node.
	ErrNoPath = errors.New("search: no path")
	// ErrRPC is returned when a chain RPC call fails.
	ErrRPC = errors.New("chain: rpc error")
	// ErrConfig is returned when configuration is missing or malformed.
	ErrConfig = errors.New("config: invalid")
)
