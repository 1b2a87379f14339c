package store

// TierResources describes the Kubernetes compute envelope granted to a box
// at a given subscription tier.
type TierResources struct {
	CPURequest    string
	CPULimit      string
	MemoryRequest string
	MemoryLimit   string
}

// TierResourceTable is the authoritative tier -> resource mapping. Values
// match the original tier configuration exactly.
var TierResourceTable = map[string]TierResources{
	"starter": {CPURequest: "250m", CPULimit: "500m", MemoryRequest: "128Mi", MemoryLimit: "256Mi"},
	"pro":     {CPURequest: "500m", CPULimit: "1000m", MemoryRequest: "256Mi", MemoryLimit: "512Mi"},
	"team":    {CPURequest: "1000m", CPULimit: "2000m", MemoryRequest: "512Mi", MemoryLimit: "1Gi"},
}

// TierTokenLimit is the monthly token allowance granted at each tier.
var TierTokenLimit = map[string]int64{
	"starter": 1_000_000,
	"pro":     5_000_000,
	"team":    20_000_000,
}

// ResourcesForTier returns the compute envelope for a tier, falling back to
// the starter tier if the tier name is unrecognized.
func ResourcesForTier(tier string) TierResources {
	if r, ok := TierResourceTable[tier]; ok {
		return r
	}
	return TierResourceTable["starter"]
}

// TokenLimitForTier returns the monthly token allowance for a tier, falling
// back to the starter tier if the tier name is unrecognized.
func TokenLimitForTier(tier string) int64 {
	if l, ok := TierTokenLimit[tier]; ok {
		return l
	}
	return TierTokenLimit["starter"]
}
