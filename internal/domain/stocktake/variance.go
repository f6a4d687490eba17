package stocktake

// VarianceKind classifies a count line by the sign of its variance.
type VarianceKind string

const (
	VariancePending  VarianceKind = "pending"
	VarianceSurplus  VarianceKind = "surplus"
	VarianceShortage VarianceKind = "shortage"
	VarianceMatch    VarianceKind = "match"
)

// ComputeVariance returns counted - system, or nil while the line is uncounted.
// The result is never clamped: a negative value is a shortage.
func ComputeVariance(counted *int64, system int64) *int64 {
	if counted == nil {
		return nil
	}
	v := *counted - system
	return &v
}

// ClassifyVariance maps a variance to its kind.
func ClassifyVariance(variance *int64) VarianceKind {
	switch {
	case variance == nil:
		return VariancePending
	case *variance > 0:
		return VarianceSurplus
	case *variance < 0:
		return VarianceShortage
	default:
		return VarianceMatch
	}
}
