package client

import (
	"context"
	"net/http"
)

// Notice is a user-facing hint derived from a failed call's status. It is
// presentation data only; the client never acts on it.
type Notice struct {
	Status  int
	Class   string
	Message string
}

// Notice classes.
const (
	NoticeSessionExpired     = "session_expired"
	NoticeForbidden          = "forbidden"
	NoticeRateLimited        = "rate_limited"
	NoticeTimeout            = "timeout"
	NoticeServerError        = "server_error"
	NoticeNetworkUnreachable = "network_unreachable"
)

// Classify maps a fault status to a notice. Statuses with no entry (most
// 4xx) return false: those are the caller's to present.
func Classify(status int) (Notice, bool) {
	n := Notice{Status: status}
	switch {
	case status == 0:
		n.Class, n.Message = NoticeNetworkUnreachable, "Network unreachable. Check your connection."
	case status == http.StatusUnauthorized:
		n.Class, n.Message = NoticeSessionExpired, "Your session has expired. Please sign in again."
	case status == http.StatusForbidden:
		n.Class, n.Message = NoticeForbidden, "You do not have permission to do that."
	case status == http.StatusRequestTimeout:
		n.Class, n.Message = NoticeTimeout, "The request timed out."
	case status == http.StatusTooManyRequests:
		n.Class, n.Message = NoticeRateLimited, "Too many requests. Try again shortly."
	case status >= 500 && status < 600:
		n.Class, n.Message = NoticeServerError, "The server had a problem. Try again later."
	default:
		return Notice{}, false
	}
	return n, true
}

// Notifier receives notices for failed calls.
type Notifier func(ctx context.Context, n Notice, f *Fault)

// NotifyInterceptor reports every classified fault to notify and leaves the
// fault unchanged.
func NotifyInterceptor(notify Notifier) ErrorInterceptor {
	return func(ctx context.Context, f *Fault, _ Request) *Fault {
		if notify == nil || f == nil {
			return nil
		}
		if n, ok := Classify(f.Status); ok {
			notify(ctx, n, f)
		}
		return nil
	}
}
