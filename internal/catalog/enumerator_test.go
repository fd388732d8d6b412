package catalog

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sloohtools/slooh-downloader/internal/logging"
	"github.com/sloohtools/slooh-downloader/internal/model"
	"github.com/sloohtools/slooh-downloader/internal/slooh"
)

type fakeLister struct {
	pictures  []*model.Picture
	fits      map[string][]*model.Picture
	fitsErr   map[string]error
	listErr   error
	pageCalls int
	fitsCalls map[string]int
}

func (f *fakeLister) GetPictures(_ context.Context, first, max int, _ string, _ string) (*slooh.Page, error) {
	f.pageCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	start := first - 1
	if start >= len(f.pictures) {
		return &slooh.Page{TotalCount: len(f.pictures)}, nil
	}
	end := start + max
	if end > len(f.pictures) {
		end = len(f.pictures)
	}
	return &slooh.Page{TotalCount: len(f.pictures), Pictures: f.pictures[start:end]}, nil
}

func (f *fakeLister) GetMissionFITS(_ context.Context, missionID string) ([]*model.Picture, error) {
	if f.fitsCalls == nil {
		f.fitsCalls = make(map[string]int)
	}
	f.fitsCalls[missionID]++
	if err := f.fitsErr[missionID]; err != nil {
		return nil, err
	}
	return f.fits[missionID], nil
}

func pic(id string) *model.Picture {
	return &model.Picture{ImageID: id, Type: "png", Title: "M42"}
}

func drain(t *testing.T, e *Enumerator) []*model.Picture {
	t.Helper()
	var out []*model.Picture
	for {
		p, err := e.Next(context.Background())
		require.NoError(t, err)
		if p == nil {
			return out
		}
		out = append(out, p)
	}
}

func TestEnumeratorPagesThroughAll(t *testing.T) {
	lister := &fakeLister{pictures: []*model.Picture{pic("1"), pic("2"), pic("3"), pic("4"), pic("5")}}
	e := New(lister, Options{PageSize: 2}, logging.Nop())

	out := drain(t, e)

	require.Len(t, out, 5)
	assert.Equal(t, "1", out[0].ImageID)
	assert.Equal(t, "5", out[4].ImageID)
	assert.Equal(t, 3, lister.pageCalls)
}

func TestEnumeratorEmptyPhotoroll(t *testing.T) {
	lister := &fakeLister{}
	e := New(lister, Options{}, logging.Nop())

	out := drain(t, e)

	assert.Empty(t, out)
	assert.Equal(t, 1, lister.pageCalls)
}

func TestEnumeratorMaxScan(t *testing.T) {
	lister := &fakeLister{pictures: []*model.Picture{pic("1"), pic("2"), pic("3"), pic("4")}}
	e := New(lister, Options{PageSize: 10, MaxScan: 2}, logging.Nop())

	out := drain(t, e)

	require.Len(t, out, 2)
	assert.Equal(t, 2, e.Scanned())
}

func TestEnumeratorStartAt(t *testing.T) {
	lister := &fakeLister{pictures: []*model.Picture{pic("1"), pic("2"), pic("3")}}
	e := New(lister, Options{PageSize: 10, StartAt: 2}, logging.Nop())

	out := drain(t, e)

	require.Len(t, out, 2)
	assert.Equal(t, "2", out[0].ImageID)
}

func TestEnumeratorListError(t *testing.T) {
	lister := &fakeLister{listErr: errors.New("boom")}
	e := New(lister, Options{}, logging.Nop())

	_, err := e.Next(context.Background())
	require.Error(t, err)

	// Sequence stays ended after a fatal error.
	p, err := e.Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestEnumeratorFITSInterleaveOncePerMission(t *testing.T) {
	p1 := pic("1")
	p1.MissionID = "m1"
	p1.Telescope = "Canary One"
	p1.DisplayDate = "Jan. 2, 2024"
	p1.DisplayTime = "10:00:00"
	p2 := pic("2")
	p2.MissionID = "m1"
	p3 := pic("3")

	lister := &fakeLister{
		pictures: []*model.Picture{p1, p2, p3},
		fits: map[string][]*model.Picture{
			"m1": {{ImageID: "f1", Type: "FITS", MissionID: "m1"}},
		},
	}
	e := New(lister, Options{PageSize: 10, IncludeFITS: true}, logging.Nop())

	out := drain(t, e)

	require.Len(t, out, 4)
	assert.Equal(t, "1", out[0].ImageID)
	assert.Equal(t, "f1", out[1].ImageID)
	assert.Equal(t, "2", out[2].ImageID)
	assert.Equal(t, 1, lister.fitsCalls["m1"])

	// FITS entries inherit context from the triggering picture.
	assert.Equal(t, "M42", out[1].Title)
	assert.Equal(t, "Canary One", out[1].Telescope)
	assert.Equal(t, "Jan. 2, 2024", out[1].DisplayDate)
}

func TestEnumeratorFITSFailureSkipsMission(t *testing.T) {
	p1 := pic("1")
	p1.MissionID = "m1"

	lister := &fakeLister{
		pictures: []*model.Picture{p1, pic("2")},
		fitsErr:  map[string]error{"m1": errors.New("unavailable")},
	}
	e := New(lister, Options{PageSize: 10, IncludeFITS: true}, logging.Nop())

	out := drain(t, e)

	require.Len(t, out, 2)
	assert.Equal(t, 1, lister.fitsCalls["m1"])
}

func TestEnumeratorFITSFetchedOnlyForYieldedPictures(t *testing.T) {
	p1 := pic("1")
	p1.MissionID = "m1"
	p2 := pic("2")
	p2.MissionID = "m2"
	p3 := pic("3")
	p3.MissionID = "m3"

	lister := &fakeLister{
		pictures: []*model.Picture{p1, p2, p3},
		fits:     map[string][]*model.Picture{},
	}
	e := New(lister, Options{PageSize: 10, IncludeFITS: true}, logging.Nop())

	// Pull a single picture and walk away, as a stopped scan does.
	first, err := e.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1", first.ImageID)

	assert.Equal(t, 1, lister.fitsCalls["m1"])
	assert.Zero(t, lister.fitsCalls["m2"])
	assert.Zero(t, lister.fitsCalls["m3"])
}

func TestEnumeratorNoFITSWithoutMission(t *testing.T) {
	lister := &fakeLister{pictures: []*model.Picture{pic("1")}}
	e := New(lister, Options{PageSize: 10, IncludeFITS: true}, logging.Nop())

	out := drain(t, e)

	require.Len(t, out, 1)
	assert.Zero(t, len(lister.fitsCalls))
}
