package parallel

// Band is a half-open row range [Y0, Y1) of an image.
type Band struct {
	Y0, Y1 int
}

// RowBands splits height rows into contiguous bands of at least minRows
// each, at most one band per available worker slot. Heights too small to
// fill two bands come back as a single band, which callers typically run
// serially.
func RowBands(height, minRows, maxBands int) []Band {
	if height <= 0 {
		return nil
	}
	if minRows < 1 {
		minRows = 1
	}
	if maxBands < 1 {
		maxBands = 1
	}

	n := height / minRows
	if n > maxBands {
		n = maxBands
	}
	if n <= 1 {
		return []Band{{0, height}}
	}

	bands := make([]Band, 0, n)
	per := height / n
	y := 0
	for i := 0; i < n; i++ {
		y1 := y + per
		if i == n-1 {
			y1 = height
		}
		bands = append(bands, Band{y, y1})
		y = y1
	}
	return bands
}
