package internaldefs

import (
	"github.com/MrEthical07/authclient"
)

// Label is one name/value pair on an exported series.
type Label struct {
	Name  string
	Value string
}

// Series maps one client counter onto a labelled series of a Family.
type Series struct {
	ID     authclient.MetricID
	Labels []Label
}

// Family is one exported counter name. All series of a family carry the
// same label names in the same order.
type Family struct {
	Name   string
	Help   string
	Series []Series
}

// HistogramDef names a latency histogram.
type HistogramDef struct {
	ID   authclient.MetricID
	Name string
	Help string
}

// AuditDropped is exported alongside the client counters.
const (
	AuditDroppedName = "authclient_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// Families groups every client counter by what it describes. Request
// decisions are labelled by the two gateway outputs, bearer and credentials,
// so excluded endpoints show up as bearer="false",credentials="false".
var Families = []Family{
	{
		Name: "authclient_requests_total",
		Help: "Requests dispatched, by gateway decision.",
		Series: []Series{
			decision(authclient.MetricRequestAuthorized, "true", "true"),
			decision(authclient.MetricRequestAnonymous, "false", "true"),
			decision(authclient.MetricRequestExcluded, "false", "false"),
		},
	},
	{
		Name: "authclient_request_failures_total",
		Help: "Requests that failed in transport or came back with an error status.",
		Series: []Series{
			one(authclient.MetricRequestTransportError, "reason", "transport"),
			one(authclient.MetricResponseUnauthorized, "reason", "unauthorized"),
			one(authclient.MetricResponseError, "reason", "status"),
		},
	},
	{
		Name: "authclient_session_events_total",
		Help: "Session store changes and restore outcomes.",
		Series: []Series{
			one(authclient.MetricSessionSet, "event", "set"),
			one(authclient.MetricSessionCleared, "event", "cleared"),
			one(authclient.MetricSessionRestored, "event", "restored"),
			one(authclient.MetricSessionUserDiscarded, "event", "user_discarded"),
			one(authclient.MetricSessionExpiredOnRestore, "event", "expired_on_restore"),
		},
	},
	{
		Name:   "authclient_storage_failures_total",
		Help:   "Session storage operations that failed and were swallowed.",
		Series: []Series{{ID: authclient.MetricStorageFailure}},
	},
	{
		Name: "authclient_auth_operations_total",
		Help: "Account operations, by operation and outcome.",
		Series: []Series{
			operation(authclient.MetricLoginSuccess, "login", "success"),
			operation(authclient.MetricLoginFailure, "login", "failure"),
			operation(authclient.MetricRegisterSuccess, "register", "success"),
			operation(authclient.MetricRegisterFailure, "register", "failure"),
			operation(authclient.MetricLogout, "logout", "success"),
			operation(authclient.MetricPasswordResetRequest, "forgot_password", "requested"),
			operation(authclient.MetricOTPVerifySuccess, "verify_otp", "success"),
			operation(authclient.MetricOTPVerifyFailure, "verify_otp", "failure"),
			operation(authclient.MetricPasswordResetSuccess, "reset_password", "success"),
			operation(authclient.MetricPasswordResetFailure, "reset_password", "failure"),
		},
	},
}

// RequestLatency is the single exported histogram.
var RequestLatency = HistogramDef{
	ID:   authclient.MetricRequestLatency,
	Name: "authclient_request_latency_seconds",
	Help: "Round-trip latency of API requests.",
}

// HistogramBounds are the upper bounds of the client's latency buckets, in
// seconds, as Prometheus le values.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

func decision(id authclient.MetricID, bearer, credentials string) Series {
	return Series{ID: id, Labels: []Label{{"bearer", bearer}, {"credentials", credentials}}}
}

func operation(id authclient.MetricID, op, outcome string) Series {
	return Series{ID: id, Labels: []Label{{"operation", op}, {"outcome", outcome}}}
}

func one(id authclient.MetricID, name, value string) Series {
	return Series{ID: id, Labels: []Label{{name, value}}}
}

// LatencyBuckets returns the cumulative latency buckets of snapshot.
func LatencyBuckets(snapshot authclient.MetricsSnapshot) [8]uint64 {
	return CumulativeBuckets(NormalizeBuckets(snapshot.Histograms[RequestLatency.ID]))
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into le-style running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
