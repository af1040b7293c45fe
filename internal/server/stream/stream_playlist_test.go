package stream

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// extinf sums the #EXTINF durations and collects segment names of a playlist
func extinf(t *testing.T, playlist []byte) (float64, []string) {
	t.Helper()
	var (
		total    float64
		segments []string
	)
	sc := bufio.NewScanner(bytes.NewReader(playlist))
	for sc.Scan() {
		line := sc.Text()
		if v, ok := strings.CutPrefix(line, "#EXTINF:"); ok {
			d, err := strconv.ParseFloat(strings.TrimSuffix(v, ","), 64)
			require.NoError(t, err)
			total += d
		} else if line != "" && !strings.HasPrefix(line, "#") {
			segments = append(segments, line)
		}
	}
	return total, segments
}

func TestBuildPlaylist(t *testing.T) {
	got := string(BuildPlaylist(14.5, 6))
	want := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-TARGETDURATION:6\n" +
		"#EXT-X-MEDIA-SEQUENCE:0\n" +
		"#EXT-X-PLAYLIST-TYPE:VOD\n" +
		"#EXTINF:6.000,\n" +
		"segment_00000.ts\n" +
		"#EXTINF:6.000,\n" +
		"segment_00001.ts\n" +
		"#EXTINF:2.500,\n" +
		"segment_00002.ts\n" +
		"#EXT-X-ENDLIST\n"
	assert.Equal(t, want, got)
}

func TestBuildPlaylist_Properties(t *testing.T) {
	cases := []struct {
		duration, segment float64
		segments          int
	}{
		{12, 6, 2},
		{12.001, 6, 3},
		{0.5, 6, 1},
		{215.27, 6, 36},
		{215.27, 4.5, 48},
		{3600, 10, 360},
		{13.9996, 10, 2},
		{2.3, 10, 1},
	}

	for _, c := range cases {
		first := BuildPlaylist(c.duration, c.segment)
		assert.Equal(t, first, BuildPlaylist(c.duration, c.segment), "byte identical on repeat")

		total, names := extinf(t, first)
		assert.InDelta(t, c.duration, total, 0.001*float64(c.segments))
		assert.LessOrEqual(t, total, c.duration+1e-9, "declared total never exceeds the duration")
		assert.Len(t, names, c.segments)
		assert.Equal(t, SegmentName(c.segments-1), names[len(names)-1])
		assert.True(t, bytes.HasSuffix(first, []byte("#EXT-X-ENDLIST\n")))
	}
}

func TestBuildPlaylist_LastSegmentNotRoundedUp(t *testing.T) {
	got := string(BuildPlaylist(13.9996, 10))
	assert.Contains(t, got, "#EXTINF:10.000,\nsegment_00000.ts\n#EXTINF:3.999,\nsegment_00001.ts\n")
	assert.Contains(t, string(BuildPlaylist(2.3, 10)), "#EXTINF:2.300,\n")
}

func TestBuildPlaylist_TargetDurationRoundsUp(t *testing.T) {
	assert.Contains(t, string(BuildPlaylist(20, 4.5)), "#EXT-X-TARGETDURATION:5\n")
}

func TestSegmentDurations(t *testing.T) {
	assert.Nil(t, SegmentDurations(0, 6))
	assert.Nil(t, SegmentDurations(10, 0))
	assert.Equal(t, []float64{6, 6}, SegmentDurations(12, 6))
	assert.Equal(t, []float64{4}, SegmentDurations(4, 6))
}
