// Package progress renders transfer progress for chat status messages.
package progress

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// DownloadHeader opens a download status box.
	DownloadHeader = "╭─────────────────────╮\n│ **__Downloading...__**\n├─────────────────────"

	// UploadHeader opens an upload status box.
	UploadHeader = "╭─────────────────────╮\n│ **__Uploading...__**\n├─────────────────────"

	bodyTemplate = "│ **__Completed:__** %s/%s\n│ **__Bytes:__** %s%%\n│ **__Speed:__** %s/s\n│ **__ETA:__** %s\n╰─────────────────────╯"
)

var sizeLabels = []string{"", "K", "M", "G", "T"}

// HumanBytes formats a byte count using powers of 1024. Zero renders as "".
func HumanBytes(n float64) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for n > 1024 && i < len(sizeLabels)-1 {
		n /= 1024
		i++
	}
	return strconv.FormatFloat(round2(n), 'f', -1, 64) + " " + sizeLabels[i] + "B"
}

// FormatDuration renders milliseconds as "1d, 2h, 3m, 4s, 5ms", omitting zero units.
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	seconds, millis := ms/1000, ms%1000
	minutes, seconds := seconds/60, seconds%60
	hours, minutes := minutes/60, minutes%60
	days, hours := hours/24, hours%24

	var parts []string
	for _, p := range []struct {
		v    int64
		unit string
	}{{days, "d"}, {hours, "h"}, {minutes, "m"}, {seconds, "s"}, {millis, "ms"}} {
		if p.v != 0 {
			parts = append(parts, strconv.FormatInt(p.v, 10)+p.unit)
		}
	}
	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, ", ")
}

// Clock renders seconds as H:MM:SS, wrapping at 24 hours.
func Clock(seconds int64) string {
	seconds %= 24 * 3600
	h := seconds / 3600
	seconds %= 3600
	return fmt.Sprintf("%d:%02d:%02d", h, seconds/60, seconds%60)
}

// Bar draws ten cells, one filled cell per started 10%.
func Bar(percent float64) string {
	filled := int(math.Floor(percent / 10))
	filled = max(0, min(10, filled))
	return strings.Repeat("♦", filled) + strings.Repeat("◇", 10-filled)
}

// Render builds the full status text for a transfer.
func Render(header string, current, total int64, elapsed time.Duration) string {
	var pct float64
	if total > 0 {
		pct = float64(current) * 100 / float64(total)
	}

	secs := elapsed.Seconds()
	var speed float64
	if secs > 0 {
		speed = float64(current) / secs
	}

	var remaining int64
	if speed > 0 && total > current {
		remaining = int64(math.Round(float64(total-current)/speed)) * 1000
	}
	eta := FormatDuration(int64(math.Round(secs))*1000 + remaining)

	body := fmt.Sprintf(bodyTemplate,
		HumanBytes(float64(current)),
		HumanBytes(float64(total)),
		strconv.FormatFloat(round2(pct), 'f', -1, 64),
		HumanBytes(speed),
		eta,
	)
	return header + "\n│ " + Bar(pct) + "\n" + body
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
