package inspect

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

func formatBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div := float64(size)
	exp := 0
	units := []string{"KiB", "MiB", "GiB", "TiB", "PiB"}
	for div >= unit && exp < len(units) {
		div /= unit
		exp++
	}
	if exp == 0 {
		return fmt.Sprintf("%.2f %s", div, units[0])
	}
	return fmt.Sprintf("%.2f %s", div, units[exp-1])
}

func formatPixels(n int) string {
	return formatThousands(int64(n)) + " pixels"
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	totalMs := d.Milliseconds()
	if totalMs < 1000 {
		return fmt.Sprintf("%d ms", totalMs)
	}
	totalSec := totalMs / 1000
	remMs := totalMs % 1000
	if totalSec < 60 {
		return fmt.Sprintf("%d s %d ms", totalSec, remMs)
	}
	hours := totalSec / 3600
	minutes := (totalSec % 3600) / 60
	secondsOnly := totalSec % 60
	if hours > 0 {
		return fmt.Sprintf("%d h %d min %d s", hours, minutes, secondsOnly)
	}
	return fmt.Sprintf("%d min %d s", minutes, secondsOnly)
}

// formatScaled renders a value stored as units of 1/100000, the encoding
// the gAMA and cHRM chunks use.
func formatScaled(v uint32) string {
	s := strconv.FormatFloat(float64(v)/100000, 'f', -1, 64)
	return s
}

func formatFrameRate(framesPerSecond float64) string {
	if framesPerSecond <= 0 || math.IsInf(framesPerSecond, 0) {
		return ""
	}
	return fmt.Sprintf("%.3f FPS", framesPerSecond)
}

func formatThousands(value int64) string {
	if value < 1000 {
		return strconv.FormatInt(value, 10)
	}

	parts := []string{}
	for value > 0 {
		chunk := value % 1000
		value /= 1000
		if value > 0 {
			chunkStr := strconv.FormatInt(chunk, 10)
			for len(chunkStr) < 3 {
				chunkStr = "0" + chunkStr
			}
			parts = append(parts, chunkStr)
		} else {
			parts = append(parts, strconv.FormatInt(chunk, 10))
		}
	}

	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}

	var result strings.Builder
	result.WriteString(parts[0])
	for i := 1; i < len(parts); i++ {
		result.WriteString(" " + parts[i])
	}
	return result.String()
}
