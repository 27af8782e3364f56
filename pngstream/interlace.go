package pngstream

// interlacePass defines the placement and size of one Adam7 pass.
type interlacePass struct {
	xFactor, yFactor, xOffset, yOffset int
}

var adam7Passes = [7]interlacePass{
	{8, 8, 0, 0},
	{8, 8, 4, 0},
	{4, 8, 0, 4},
	{4, 4, 2, 0},
	{2, 4, 0, 2},
	{2, 2, 1, 0},
	{1, 2, 0, 1},
}

var progressivePass = interlacePass{1, 1, 0, 0}

// passes returns the pass list for a frame. Adam7 passes that are empty for
// the frame's size carry no scanlines at all in the stream, so extent checks
// against zero matter.
func passes(interlaced bool) []interlacePass {
	if interlaced {
		return adam7Passes[:]
	}
	return []interlacePass{progressivePass}
}

// extent returns the pixel dimensions of the pass for a width×height frame.
func (p interlacePass) extent(width, height int) (pw, ph int) {
	pw = (width - p.xOffset + p.xFactor - 1) / p.xFactor
	ph = (height - p.yOffset + p.yFactor - 1) / p.yFactor
	if pw < 0 {
		pw = 0
	}
	if ph < 0 {
		ph = 0
	}
	return pw, ph
}
