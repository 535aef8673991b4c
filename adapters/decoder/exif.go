package decoder

import (
	exif "github.com/dsoprea/go-exif/v3"
)

// Orientation extracts the EXIF orientation tag (1-8) from raw encoded bytes.
// Returns 0 when the image carries no EXIF block or no orientation tag;
// malformed EXIF is treated the same way rather than failing the decode.
func Orientation(data []byte) int {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		return 0
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return 0
	}

	for _, entry := range entries {
		if entry.TagName != "Orientation" {
			continue
		}
		if vals, ok := entry.Value.([]uint16); ok && len(vals) > 0 {
			o := int(vals[0])
			if o >= 1 && o <= 8 {
				return o
			}
		}
	}
	return 0
}
