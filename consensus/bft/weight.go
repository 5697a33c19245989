package bft

// ComputeWeightThresholdForBuildingQC returns the weight t that is minimally
// required for building a QC or TC: the smallest integer t such that
// 2 * totalWeight / 3 < t.
// Formally: 2 * Floor(totalWeight/3) + max(1, totalWeight mod 3).
func ComputeWeightThresholdForBuildingQC(totalWeight uint64) uint64 {
	floorOneThird := totalWeight / 3 // integer division, includes floor
	res := 2 * floorOneThird
	divRemainder := totalWeight % 3
	if divRemainder <= 1 {
		res = res + 1
	} else {
		res += divRemainder
	}
	return res
}

// ComputeWeightThresholdForTimingOut returns the smallest integer t such that
// totalWeight / 3 < t. Accumulating this much timeout weight proves at least
// one honest validator has timed out the round, so it is safe for everyone
// else to follow.
func ComputeWeightThresholdForTimingOut(totalWeight uint64) uint64 {
	res := totalWeight / 3 // integer division, includes floor
	divRemainder := totalWeight % 3
	if divRemainder <= 1 {
		res = res + 1
	} else {
		res += divRemainder
	}
	return res
}
