package pose

// COCO keypoint names in model output order
var KeypointNames = [17]string{
	"nose",
	"left_eye",
	"right_eye",
	"left_ear",
	"right_ear",
	"left_shoulder",
	"right_shoulder",
	"left_elbow",
	"right_elbow",
	"left_wrist",
	"right_wrist",
	"left_hip",
	"right_hip",
	"left_knee",
	"right_knee",
	"left_ankle",
	"right_ankle",
}

// Skeleton lists keypoint index pairs joined by a limb
var Skeleton = [][2]int{
	{15, 13}, {13, 11}, {16, 14}, {14, 12}, {11, 12},
	{5, 11}, {6, 12}, {5, 6}, {5, 7}, {6, 8},
	{7, 9}, {8, 10}, {1, 2}, {0, 1}, {0, 2},
	{1, 3}, {2, 4}, {3, 5}, {4, 6},
}

// KeypointIndex returns the COCO index of a keypoint name or -1
func KeypointIndex(name string) int {
	for i, n := range KeypointNames {
		if n == name {
			return i
		}
	}
	return -1
}
