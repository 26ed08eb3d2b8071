package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/pose-cropper/pkg/types"
)

func TestRemapKeypoints_Corners(t *testing.T) {
	crop := types.CropRegion{StartX: 40, StartY: 60, Size: 300}
	kps := []types.Keypoint{
		{X: 0, Y: 0, Name: "nose", Confidence: 0.9},
		{X: 192, Y: 192, Name: "left_ankle", Confidence: 0.4},
	}

	got, err := RemapKeypoints(kps, crop, 192)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 40.0, got[0].X)
	assert.Equal(t, 60.0, got[0].Y)
	assert.InDelta(t, 340.0, got[1].X, 1e-9)
	assert.InDelta(t, 360.0, got[1].Y, 1e-9)

	assert.Equal(t, "nose", got[0].Name)
	assert.Equal(t, 0.9, got[0].Confidence)
	assert.Equal(t, "left_ankle", got[1].Name)
	assert.Equal(t, 0.4, got[1].Confidence)

	// input untouched
	assert.Equal(t, 0.0, kps[0].X)
}

func TestRemapKeypoints_UnitRatio(t *testing.T) {
	crop := types.CropRegion{StartX: 10, StartY: 20, Size: 192}
	got, err := RemapKeypoints([]types.Keypoint{{X: 96, Y: 96}}, crop, 192)
	require.NoError(t, err)
	assert.Equal(t, types.Keypoint{X: 106, Y: 116}, got[0])
}

func TestRemapKeypoints_InvalidSize(t *testing.T) {
	_, err := RemapKeypoints(nil, types.CropRegion{Size: 10}, 0)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestRemapKeypoints_Empty(t *testing.T) {
	got, err := RemapKeypoints(nil, types.CropRegion{Size: 10}, 192)
	require.NoError(t, err)
	assert.Empty(t, got)
}
