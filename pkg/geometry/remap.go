package geometry

import "github.com/menta2k/pose-cropper/pkg/types"

// RemapKeypoints converts keypoints from the resizedSize x resizedSize model
// input back to source image coordinates through the crop's scale and offset.
// Name and confidence are copied unchanged. The input slice is not modified.
func RemapKeypoints(kps []types.Keypoint, crop types.CropRegion, resizedSize int) ([]types.Keypoint, error) {
	if resizedSize <= 0 {
		return nil, ErrInvalidSize
	}

	ratio := float64(crop.Size) / float64(resizedSize)
	out := make([]types.Keypoint, len(kps))
	for i, kp := range kps {
		out[i] = types.Keypoint{
			X:          kp.X*ratio + float64(crop.StartX),
			Y:          kp.Y*ratio + float64(crop.StartY),
			Name:       kp.Name,
			Confidence: kp.Confidence,
		}
	}
	return out, nil
}
