package detection

import "github.com/menta2k/pose-cropper/pkg/types"

const (
	// PersonClass is the detector class used as the pose subject
	PersonClass = "person"
	// DefaultMinScore is the exclusive lower bound a detection score must exceed
	DefaultMinScore = 0.66
)

// SelectionPolicy decides which qualifying detection becomes the subject
type SelectionPolicy string

const (
	// HighestScore picks the best scoring qualifying detection. Ties go to
	// the one listed first.
	HighestScore SelectionPolicy = "highest"
	// FirstQualifying picks the first qualifying detection in detector order
	FirstQualifying SelectionPolicy = "first"
)

// Valid reports whether p is a known policy
func (p SelectionPolicy) Valid() bool {
	return p == HighestScore || p == FirstQualifying
}

// SelectOptions controls subject selection
type SelectOptions struct {
	Class    string
	MinScore float64
	Policy   SelectionPolicy
}

// DefaultSelectOptions returns person class, 0.66 threshold, highest score
func DefaultSelectOptions() SelectOptions {
	return SelectOptions{
		Class:    PersonClass,
		MinScore: DefaultMinScore,
		Policy:   HighestScore,
	}
}

// Filter keeps detections of the given class whose score is strictly above minScore
func Filter(dets []types.Detection, class string, minScore float64) []types.Detection {
	out := make([]types.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Class == class && d.Score > minScore {
			out = append(out, d)
		}
	}
	return out
}

// SelectSubject returns the detection to run pose estimation on
func SelectSubject(dets []types.Detection, opts SelectOptions) (types.Detection, bool) {
	qualifying := Filter(dets, opts.Class, opts.MinScore)
	if len(qualifying) == 0 {
		return types.Detection{}, false
	}

	if opts.Policy == FirstQualifying {
		return qualifying[0], true
	}

	best := qualifying[0]
	for _, d := range qualifying[1:] {
		if d.Score > best.Score {
			best = d
		}
	}
	return best, true
}
