package domain

// On-chain identities of the ORE program.
const (
	OREProgramID = "oreV3EG1i9BEgiAJ8b177Z2S2rMarzak4NMv1kULvWv"
	OREMint      = "oreoU2P8bN6jkk3jbaiVxYnG1dCXcYxwhwyK9jSybcp"
)

// Unit conversions.
const (
	LamportsPerSOL = 1_000_000_000
	GramsPerORE    = 100_000_000_000 // ORE has 11 decimals
)

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}

// SOLToLamports converts SOL to lamports, truncating fractions of a lamport.
// Negative amounts map to zero.
func SOLToLamports(sol float64) uint64 {
	if sol <= 0 {
		return 0
	}
	return uint64(sol * LamportsPerSOL)
}

// GramsToORE converts the smallest ORE unit to ORE.
func GramsToORE(grams uint64) float64 {
	return float64(grams) / GramsPerORE
}
