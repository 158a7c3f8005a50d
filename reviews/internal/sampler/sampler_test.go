package sampler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frothly/episode-mesh/internal/apiversion"
)

func pools() ([]json.RawMessage, []json.RawMessage) {
	pos := []json.RawMessage{
		json.RawMessage(`{"review_id":"r-1","stars":5,"text":"Great coffee"}`),
		json.RawMessage(`{"review_id":"r-2","stars":4,"text":"Good"}`),
	}
	neg := []json.RawMessage{
		json.RawMessage(`{"review_id":"r-3","stars":1,"text":"Cold and late"}`),
	}
	return pos, neg
}

func TestNewRejectsEmptyPools(t *testing.T) {
	pos, neg := pools()
	_, err := New(nil, neg, nil)
	assert.ErrorIs(t, err, ErrEmptyPool)
	_, err = New(pos, []json.RawMessage{}, nil)
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestSampleDistribution(t *testing.T) {
	const draws = 10000
	pos, neg := pools()
	s, err := New(pos, neg, rand.NewPCG(7, 11))
	require.NoError(t, err)

	for _, tc := range []struct {
		version apiversion.Version
		want    float64
	}{
		{apiversion.Nominal, 0.90},
		{3, 0.90},
		{apiversion.Legacy, 0.10},
	} {
		positives := 0
		for i := 0; i < draws; i++ {
			if _, ok := s.Sample(tc.version); ok {
				positives++
			}
		}
		got := float64(positives) / draws
		assert.InDelta(t, tc.want, got, 0.03, "version %d", tc.version)
	}
}

func TestSampleReturnsPoolRecord(t *testing.T) {
	pos, neg := pools()
	s, err := New(pos, neg, rand.NewPCG(1, 2))
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		rec, positive := s.Sample(apiversion.Legacy)
		stars, ok := Stars(rec)
		require.True(t, ok)
		if positive {
			assert.GreaterOrEqual(t, stars, 4.0)
		} else {
			assert.Equal(t, 1.0, stars)
		}
	}
}

func TestLoadReadsBothPools(t *testing.T) {
	files := map[string]string{
		"positive_reviews.json": "{\"stars\":5}\n{\"stars\":4}\n",
		"negative_reviews.json": "{\"stars\":1}\n",
	}
	open := func(_ context.Context, name string) (io.Reader, error) {
		body, ok := files[name]
		if !ok {
			return nil, errors.New("no such file")
		}
		return strings.NewReader(body), nil
	}
	s, err := Load(context.Background(), open, "positive_reviews.json", "negative_reviews.json", nil)
	require.NoError(t, err)
	p, n := s.Sizes()
	assert.Equal(t, 2, p)
	assert.Equal(t, 1, n)

	files["negative_reviews.json"] = "\n"
	_, err = Load(context.Background(), open, "positive_reviews.json", "negative_reviews.json", nil)
	assert.ErrorIs(t, err, ErrEmptyPool)

	_, err = Load(context.Background(), open, "positive_reviews.json", "missing.json", nil)
	assert.Error(t, err)
}

func TestStars(t *testing.T) {
	_, ok := Stars(json.RawMessage(`{"text":"no rating"}`))
	assert.False(t, ok)
	v, ok := Stars(json.RawMessage(`{"stars":3.5}`))
	assert.True(t, ok)
	assert.Equal(t, 3.5, v)
	_, ok = Stars(json.RawMessage(bytes.Repeat([]byte("x"), 3)))
	assert.False(t, ok)
}
