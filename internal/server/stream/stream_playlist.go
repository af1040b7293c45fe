package stream

import (
	"bytes"
	"fmt"
	"math"
)

// segmentEpsilon drops a trailing remainder that is only float noise
const segmentEpsilon = 1e-6

// SegmentName is the file name of segment i in a synthesized playlist
func SegmentName(i int) string {
	return fmt.Sprintf("segment_%05d.ts", i)
}

// SegmentDurations splits duration into segments of segmentLength, the last one takes the remainder
func SegmentDurations(duration, segmentLength float64) []float64 {
	if duration <= 0 || segmentLength <= 0 {
		return nil
	}

	full := int(math.Floor(duration / segmentLength))
	remainder := duration - float64(full)*segmentLength
	if remainder < segmentEpsilon {
		remainder = 0
	}

	durations := make([]float64, 0, full+1)
	for range full {
		durations = append(durations, segmentLength)
	}
	if remainder > 0 {
		durations = append(durations, remainder)
	}
	return durations
}

// BuildPlaylist renders a VOD HLS media playlist. The output depends only on its arguments.
func BuildPlaylist(duration, segmentLength float64) []byte {
	var b bytes.Buffer
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", int(math.Ceil(segmentLength)))
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")

	for i, d := range SegmentDurations(duration, segmentLength) {
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n", declaredSeconds(d))
		b.WriteString(SegmentName(i))
		b.WriteByte('\n')
	}

	b.WriteString("#EXT-X-ENDLIST\n")
	return b.Bytes()
}

// declaredSeconds rounds d to milliseconds without ever going above it
func declaredSeconds(d float64) float64 {
	if v := math.Round(d*1000) / 1000; v <= d {
		return v
	}
	return math.Floor(d*1000) / 1000
}
