package health

import (
	"context"
	"fmt"
	"time"

	"github.com/mancow2001/ntx-custom-monitor/internal/plugin"
	"github.com/mancow2001/ntx-custom-monitor/internal/source"
)

// CheckerFunc adapts a function to plugin.HealthChecker.
type CheckerFunc func(ctx context.Context) plugin.HealthStatus

func (f CheckerFunc) Health(ctx context.Context) plugin.HealthStatus { return f(ctx) }

type stateReporter interface {
	HealthState() source.HealthState
}

// SourceCheck reports the telemetry source's health. Sources that track
// request outcomes contribute their failure detail.
func SourceCheck(src source.Source) plugin.HealthChecker {
	return CheckerFunc(func(context.Context) plugin.HealthStatus {
		st := plugin.HealthStatus{Healthy: src.Healthy()}
		sr, ok := src.(stateReporter)
		if !ok {
			if !st.Healthy {
				st.Detail = "source unhealthy"
			}
			return st
		}
		hs := sr.HealthState()
		switch {
		case hs.AuthFailed:
			st.Detail = "authentication failed"
		case hs.LastError != "":
			st.Detail = fmt.Sprintf("%d consecutive failures: %s", hs.ConsecutiveFailures, hs.LastError)
		case hs.LastSuccess.IsZero():
			st.Detail = "no successful request yet"
		default:
			st.Detail = "last success " + hs.LastSuccess.Format(time.RFC3339)
		}
		return st
	})
}
