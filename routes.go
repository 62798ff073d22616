package authclient

import "strings"

// Route is one page of the client application.
type Route struct {
	Path string
	Name string
	// Public routes are reachable without a session. Every page of the
	// password-reset flow is public.
	Public bool
}

var routes = []Route{
	{Path: "/", Name: "Home"},
	{Path: "/register", Name: "Register", Public: true},
	{Path: "/login", Name: "Login", Public: true},
	{Path: "/forgot-password", Name: "ForgotPassword", Public: true},
	{Path: "/verify-otp", Name: "OTPVerification", Public: true},
	{Path: "/reset-password", Name: "ResetPassword", Public: true},
}

// Routes returns a copy of the route table in declaration order.
func Routes() []Route {
	out := make([]Route, len(routes))
	copy(out, routes)
	return out
}

// LookupRoute finds the route for path. A trailing slash and any query or
// fragment are ignored.
func LookupRoute(path string) (Route, bool) {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	if path == "" {
		path = "/"
	}
	for _, r := range routes {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// RouteByName finds a route by its name, case-sensitively.
func RouteByName(name string) (Route, bool) {
	for _, r := range routes {
		if r.Name == name {
			return r, true
		}
	}
	return Route{}, false
}
