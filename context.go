package authkeep

import "context"

type clientIPContextKey struct{}
type clientDeviceContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. Login records it as
// the last-login address; it also feeds the per-IP throttle and audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithClientDevice attaches a device description, usually the User-Agent.
func WithClientDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, clientDeviceContextKey{}, device)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func clientDeviceFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	device, _ := ctx.Value(clientDeviceContextKey{}).(string)
	return device
}
