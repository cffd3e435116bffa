package color

// SelectionPalette hands out distinct colors for user selections by
// round-robin over a fixed categorical palette.
type SelectionPalette struct {
	next int
}

// Distinct categorical palette (tab20 order).
var paletteColors = []Color{
	{31, 119, 180, 1},  // Blue
	{255, 127, 14, 1},  // Orange
	{44, 160, 44, 1},   // Green
	{214, 39, 40, 1},   // Red
	{148, 103, 189, 1}, // Purple
	{140, 86, 75, 1},   // Brown
	{227, 119, 194, 1}, // Pink
	{127, 127, 127, 1}, // Gray
	{188, 189, 34, 1},  // Olive
	{23, 190, 207, 1},  // Cyan
	{174, 199, 232, 1}, // Light blue
	{255, 187, 120, 1}, // Light orange
	{152, 223, 138, 1}, // Light green
	{255, 152, 150, 1}, // Light red
	{197, 176, 213, 1}, // Light purple
	{196, 156, 148, 1}, // Light brown
	{247, 182, 210, 1}, // Light pink
	{199, 199, 199, 1}, // Light gray
	{219, 219, 141, 1}, // Light olive
	{158, 218, 229, 1}, // Light cyan
}

// Next returns the next palette color, wrapping around.
func (p *SelectionPalette) Next() Color {
	c := paletteColors[p.next%len(paletteColors)]
	p.next++
	return c
}

// PaletteSize returns the number of distinct palette entries.
func PaletteSize() int {
	return len(paletteColors)
}

// PaletteColor returns the i-th palette entry, wrapping around.
func PaletteColor(i int) Color {
	if i < 0 {
		i = -i
	}
	return paletteColors[i%len(paletteColors)]
}
