package pose

import "math"

// Prominent reports whether the pose's bounding box is at least threshold
// tall in normalized image space.  Small boxes are usually background people
// or false detections.
func Prominent(p *Pose, threshold float64) bool {
	return p.Height() >= threshold
}

// Distinct reports whether the pose's center lies further than threshold
// along X from every pose already accepted
func Distinct(p *Pose, accepted []*Pose, threshold float64) bool {

	for _, a := range accepted {
		if math.Abs(p.Center.X-a.Center.X) < threshold {
			return false
		}
	}

	return true
}

// Filter applies the prominence filter and then the distinctness filter to
// poses in order, returning those accepted
func Filter(poses []*Pose, distinctThreshold, prominentThreshold float64) []*Pose {

	accepted := make([]*Pose, 0, len(poses))

	for _, p := range poses {
		if !Prominent(p, prominentThreshold) {
			continue
		}

		if !Distinct(p, accepted, distinctThreshold) {
			continue
		}

		accepted = append(accepted, p)
	}

	return accepted
}
