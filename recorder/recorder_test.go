package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortlink-service/cache"
	"shortlink-service/models"
)

type fakeGeo struct {
	calls int
	loc   models.Location
}

func (f *fakeGeo) Resolve(_ context.Context, _ string) models.Location {
	f.calls++
	return f.loc
}

type fakeQueue struct {
	accepted bool
	visits   []models.Visit
}

func (f *fakeQueue) Enqueue(v models.Visit) bool {
	if f.accepted {
		f.visits = append(f.visits, v)
	}
	return f.accepted
}

type fakeCounter struct {
	keys []string
	err  error
}

func (f *fakeCounter) Incr(_ context.Context, key string) (int64, error) {
	f.keys = append(f.keys, key)
	return 1, f.err
}

func newTestRecorder(queue *fakeQueue, counter Counter) (*Recorder, *fakeGeo) {
	geo := &fakeGeo{loc: models.Location{Country: "Germany", Region: "Berlin", City: "Berlin", ISP: "Example AG"}}
	clock := cache.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return New(geo, queue, counter, "https://sho.rt", clock, zerolog.Nop()), geo
}

func testLink() *models.Link {
	return &models.Link{ID: 3, Slug: "abc", OriginalURL: "https://example.com"}
}

func TestRecordBuildsVisit(t *testing.T) {
	queue := &fakeQueue{accepted: true}
	counter := &fakeCounter{}
	rec, geo := newTestRecorder(queue, counter)

	meta := models.RequestMeta{
		IPAddress: "203.0.113.7",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0",
		Referrer:  "https://news.ycombinator.com/item?id=1",
	}

	ok := rec.Record(context.Background(), testLink(), meta)
	require.True(t, ok)
	require.Len(t, queue.visits, 1)

	v := queue.visits[0]
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, int64(3), v.LinkID)
	assert.Equal(t, "abc", v.Slug)
	assert.Equal(t, "203.0.113.7", v.IPAddress)
	assert.Equal(t, "https://news.ycombinator.com/item?id=1", v.Referrer)
	assert.Len(t, v.VisitorHash, 16)
	assert.Equal(t, "Germany", v.Location.Country)
	assert.Equal(t, 1, geo.calls)
	assert.Equal(t, []string{"clicks:realtime:abc"}, counter.keys)
}

func TestRecordQueueFull(t *testing.T) {
	queue := &fakeQueue{accepted: false}
	rec, _ := newTestRecorder(queue, nil)

	ok := rec.Record(context.Background(), testLink(), models.RequestMeta{IPAddress: "203.0.113.7"})
	assert.False(t, ok)
}

func TestRecordNilCounter(t *testing.T) {
	queue := &fakeQueue{accepted: true}
	rec, _ := newTestRecorder(queue, nil)

	ok := rec.Record(context.Background(), testLink(), models.RequestMeta{IPAddress: "203.0.113.7"})
	assert.True(t, ok)
}

func TestRecordCounterFailureIsSwallowed(t *testing.T) {
	queue := &fakeQueue{accepted: true}
	counter := &fakeCounter{err: assert.AnError}
	rec, _ := newTestRecorder(queue, counter)

	ok := rec.Record(context.Background(), testLink(), models.RequestMeta{IPAddress: "203.0.113.7"})
	assert.True(t, ok, "counter failures must not fail the record")
}

func TestEffectiveReferrer(t *testing.T) {
	tests := []struct {
		name string
		meta models.RequestMeta
		want string
	}{
		{
			name: "plain external referrer kept",
			meta: models.RequestMeta{Referrer: "https://example.org/page"},
			want: "https://example.org/page",
		},
		{
			name: "original referrer overrides the header",
			meta: models.RequestMeta{
				Referrer:         "https://sho.rt/abc",
				OriginalReferrer: "https://twitter.com/status/1",
			},
			want: "https://twitter.com/status/1",
		},
		{
			name: "self-host referrer suppressed",
			meta: models.RequestMeta{Referrer: "https://sho.rt/other"},
			want: "",
		},
		{
			name: "internal analytics path suppressed",
			meta: models.RequestMeta{Referrer: "/api/analytics?slug=abc"},
			want: "",
		},
		{
			name: "dashboard challenge referrer kept for relabeling",
			meta: models.RequestMeta{Referrer: "/dashboard/analytics/abc"},
			want: "/dashboard/analytics/abc",
		},
		{
			name: "empty stays empty",
			meta: models.RequestMeta{},
			want: "",
		},
		{
			name: "malformed referrer kept as-is",
			meta: models.RequestMeta{Referrer: "http://%zz"},
			want: "http://%zz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := &fakeQueue{accepted: true}
			rec, _ := newTestRecorder(queue, nil)

			tt.meta.IPAddress = "203.0.113.7"
			require.True(t, rec.Record(context.Background(), testLink(), tt.meta))
			require.Len(t, queue.visits, 1)
			assert.Equal(t, tt.want, queue.visits[0].Referrer)
		})
	}
}
