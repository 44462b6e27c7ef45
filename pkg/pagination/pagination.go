package pagination

const (
	// DefaultLimit is the page size used when a limit is not provided.
	DefaultLimit = 20
	// MaxLimit caps how many rows a single page can request.
	MaxLimit = 100
)

// Params holds offset pagination inputs.
type Params struct {
	Offset int
	Limit  int
}

// Normalize applies the default and maximum limits and clamps negative offsets.
func (p Params) Normalize() Params {
	return Params{Offset: NormalizeOffset(p.Offset), Limit: NormalizeLimit(p.Limit)}
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func NormalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
