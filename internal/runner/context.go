package runner

import "context"

// VUInfo identifies the virtual user and iteration a request belongs to.
type VUInfo struct {
	ID        int   // zero-based index in the VU pool
	Iteration int64 // one-based iteration count of that VU
}

type vuInfoKey struct{}

func withVUInfo(ctx context.Context, info VUInfo) context.Context {
	return context.WithValue(ctx, vuInfoKey{}, info)
}

// VUFromContext returns the VUInfo stored by the runner, if any.
func VUFromContext(ctx context.Context) (VUInfo, bool) {
	info, ok := ctx.Value(vuInfoKey{}).(VUInfo)
	return info, ok
}
