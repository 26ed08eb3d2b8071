package pose

import (
	"context"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeClient) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return f.reply, f.err
}

func (f *fakeClient) Query(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

func TestEstimatePoses(t *testing.T) {
	c := &fakeClient{reply: `{"poses": [
		{"score": 0.9, "keypoints": [
			{"name": "nose", "x": 0.5, "y": 0.25, "score": 0.95},
			{"name": "Left_Wrist", "x": 1.2, "y": -0.1, "score": 0.4},
			{"name": "tail", "x": 0.1, "y": 0.1, "score": 0.9}
		]},
		{"score": 0.3, "keypoints": []}
	]}`}

	e := NewEstimator(c, "vision")
	poses, err := e.EstimatePoses(context.Background(), image.NewNRGBA(image.Rect(0, 0, 192, 192)), 1)
	require.NoError(t, err)
	require.Len(t, poses, 1)
	assert.True(t, strings.Contains(c.prompt, "at most 1 poses"))

	kps := poses[0].Keypoints
	require.Len(t, kps, 2)
	assert.Equal(t, "nose", kps[0].Name)
	assert.Equal(t, 96.0, kps[0].X)
	assert.Equal(t, 48.0, kps[0].Y)
	assert.Equal(t, 0.95, kps[0].Confidence)

	assert.Equal(t, "left_wrist", kps[1].Name)
	assert.Equal(t, 192.0, kps[1].X)
	assert.Equal(t, 0.0, kps[1].Y)
}

func TestEstimatePoses_NotSquare(t *testing.T) {
	e := NewEstimator(&fakeClient{}, "vision")
	_, err := e.EstimatePoses(context.Background(), image.NewNRGBA(image.Rect(0, 0, 192, 100)), 1)
	assert.ErrorIs(t, err, ErrNotSquare)
}

func TestEstimatePoses_NoPeople(t *testing.T) {
	e := NewEstimator(&fakeClient{reply: `{"poses": []}`}, "vision")
	poses, err := e.EstimatePoses(context.Background(), image.NewNRGBA(image.Rect(0, 0, 64, 64)), 0)
	require.NoError(t, err)
	assert.Empty(t, poses)
}

func TestKeypointIndex(t *testing.T) {
	assert.Equal(t, 0, KeypointIndex("nose"))
	assert.Equal(t, 16, KeypointIndex("right_ankle"))
	assert.Equal(t, -1, KeypointIndex("tail"))

	for _, pair := range Skeleton {
		assert.Less(t, pair[0], len(KeypointNames))
		assert.Less(t, pair[1], len(KeypointNames))
	}
}
