package media

// FullSizeTag marks the full-size rendition of an image.
const FullSizeTag = "xxl"

// SizeSpec is one rung of the fixed size ladder: a tag and the bound on the
// longer side of the resized rendition.
type SizeSpec struct {
	Tag     string
	MaxSide int
}

// sizeLadder holds the resized renditions below the full-size one. Together
// with the full-size rendition and the alternate-format copies this spans
// the variant matrix of up to 16 files per image.
var sizeLadder = []SizeSpec{
	{Tag: "icon", MaxSide: 100},
	{Tag: "thumb", MaxSide: 200},
	{Tag: "xs", MaxSide: 400},
	{Tag: "s", MaxSide: 600},
	{Tag: "m", MaxSide: 800},
	{Tag: "l", MaxSide: 1200},
	{Tag: "xl", MaxSide: 1600},
}

// PlanSizes returns the rungs of the size ladder whose bound does not exceed
// the longer side of the source image. Upscaling is never planned.
func PlanSizes(width, height int) []SizeSpec {
	longer := width
	if height > longer {
		longer = height
	}

	sizes := make([]SizeSpec, 0, len(sizeLadder))
	for _, size := range sizeLadder {
		if size.MaxSide <= longer {
			sizes = append(sizes, size)
		}
	}

	return sizes
}
