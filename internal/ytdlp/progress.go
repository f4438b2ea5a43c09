package ytdlp

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Progress is a raw engine progress sample, parsed from one output line
type Progress struct {
	Percent        float64
	SpeedBPS       float64
	ETA            time.Duration
	Postprocessing bool
}

// downloadLine matches yt-dlp --newline progress output, e.g.
// [download]  42.0% of ~12.34MiB at 1.23MiB/s ETA 00:12
var downloadLine = regexp.MustCompile(
	`^\[download\]\s+([\d.]+)%(?:\s+of\s+~?\s*[\d.]+\w+)?(?:\s+at\s+([\d.]+)(B|KiB|MiB|GiB)/s)?(?:\s+ETA\s+(\d+(?::\d+)+))?`)

// postprocessPrefixes mark phases after the transfer has finished
var postprocessPrefixes = []string{"[Merger]", "[ExtractAudio]", "[Fixup", "[VideoConvertor]", "[ffmpeg]"}

// parseProgressLine converts one line of engine output into a Progress
// sample. Lines that carry no progress information return ok=false.
func parseProgressLine(line string) (Progress, bool) {
	line = strings.TrimSpace(line)

	for _, prefix := range postprocessPrefixes {
		if strings.HasPrefix(line, prefix) {
			return Progress{Percent: 100, Postprocessing: true}, true
		}
	}

	m := downloadLine.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}

	percent, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Progress{}, false
	}

	p := Progress{Percent: percent}

	if m[2] != "" {
		if speed, err := strconv.ParseFloat(m[2], 64); err == nil {
			p.SpeedBPS = speed * unitMultiplier(m[3])
		}
	}

	if m[4] != "" {
		p.ETA = parseClock(m[4])
	}

	return p, true
}

func unitMultiplier(unit string) float64 {
	switch unit {
	case "KiB":
		return 1024
	case "MiB":
		return 1024 * 1024
	case "GiB":
		return 1024 * 1024 * 1024
	default:
		return 1
	}
}

// parseClock reads MM:SS or HH:MM:SS into a duration
func parseClock(clock string) time.Duration {
	parts := strings.Split(clock, ":")
	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}
