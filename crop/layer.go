package crop

// Layers select a detail level. Layer 6 is full resolution and every step
// down halves both dimensions.
const (
	MinLayer     = 1
	MaxLayer     = 6
	DefaultLayer = MaxLayer
)

// ValidLayer reports whether layer is in [MinLayer, MaxLayer].
func ValidLayer(layer int) bool {
	return layer >= MinLayer && layer <= MaxLayer
}

// Stride is the sampling step for layer: 2^(MaxLayer-layer).
// Layers outside [MinLayer, MaxLayer] are clamped into range.
func Stride(layer int) int {
	return 1 << (MaxLayer - clampLayer(layer))
}

func clampLayer(layer int) int {
	return min(max(layer, MinLayer), MaxLayer)
}

// OutputSize returns the dimensions of a w×h region sampled at layer.
// Partial strides at the edge still produce a pixel, and neither side drops below 1.
func OutputSize(w, h, layer int) (int, int) {
	stride := Stride(layer)
	return max(1, ceilDiv(w, stride)), max(1, ceilDiv(h, stride))
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
