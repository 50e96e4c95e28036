// SPDX-License-Identifier: MIT

package archive

import (
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// fileTimeLayout renders a clip's start time for file names. The stamp is
// always UTC regardless of the query timezone.
const fileTimeLayout = "02_01_2006-15:04:05"

// NormalizeCameraName converts a camera display name into the form used for
// directory and file names: NFC-normalised, lower case, with spaces and path
// separators replaced by underscores.
func NormalizeCameraName(name string) string {
	s := norm.NFC.String(name)
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\':
			return '_'
		}
		return r
	}, s)
	if s == "" {
		return "camera"
	}
	return s
}

// ClipFileName derives the on-disk name for a clip from its start time in
// epoch milliseconds and its camera display name, e.g.
// "05_10_2018-06:00:00-front_door.mp4".
func ClipFileName(startMS int64, cameraName string) string {
	stamp := time.UnixMilli(startMS).UTC().Format(fileTimeLayout)
	return stamp + "-" + NormalizeCameraName(cameraName) + ".mp4"
}

// clipPath is the clip's final destination under the camera subdirectory.
func clipPath(outputDir string, clip Clip) string {
	return filepath.Join(outputDir, NormalizeCameraName(clip.CameraName), clip.FileName)
}
