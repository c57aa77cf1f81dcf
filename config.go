package x402

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/adipundir/aptos-x402/clients"
	"github.com/adipundir/aptos-x402/types"
	"github.com/adipundir/aptos-x402/utils"
)

// Route binds one path pattern to its payment requirement. Patterns are
// exact paths ("/api/report") or prefixes ("/api/*").
type Route struct {
	Pattern      string
	Requirements types.PaymentRequirements
}

// RouteTable is the read-only pricing configuration. It is built once
// at start-up, validated eagerly, and shared by every request.
type RouteTable struct {
	routes    []Route
	skipPaths []string
}

var validate = validator.New()

// NewRouteTable validates and freezes the route configuration. Any
// incomplete entry is a fatal configuration error here, never a
// request-time 500.
func NewRouteTable(routes []Route, skipPaths ...string) (*RouteTable, error) {
	if len(routes) == 0 {
		return nil, types.ConfigErrorf("route table is empty")
	}
	for i := range routes {
		r := &routes[i]
		if r.Pattern == "" || !strings.HasPrefix(r.Pattern, "/") {
			return nil, types.ConfigErrorf("route %d: pattern %q must start with /", i, r.Pattern)
		}
		if err := validate.Struct(&r.Requirements); err != nil {
			return nil, types.ConfigErrorf("route %q: %v", r.Pattern, err)
		}

		network, err := types.Canonical(string(r.Requirements.Network))
		if err != nil {
			return nil, types.ConfigErrorf("route %q: %v", r.Pattern, err)
		}
		r.Requirements.Network = network

		if _, err := utils.ParseMinorUnits(r.Requirements.MaxAmountRequired); err != nil {
			return nil, types.ConfigErrorf("route %q: price: %v", r.Pattern, err)
		}
		if _, err := clients.ParseAddress(r.Requirements.PayTo); err != nil {
			return nil, types.ConfigErrorf("route %q: payTo: %v", r.Pattern, err)
		}
		if _, err := clients.ParseAddress(r.Requirements.Asset); err != nil {
			return nil, types.ConfigErrorf("route %q: asset: %v", r.Pattern, err)
		}
	}

	return &RouteTable{
		routes:    routes,
		skipPaths: skipPaths,
	}, nil
}

// Match finds the payment requirement for a request path. Exact matches
// win over prefixes and the longest matching pattern wins overall.
func (t *RouteTable) Match(requestPath string) (*types.PaymentRequirements, bool) {
	for _, skip := range t.skipPaths {
		if matchPattern(requestPath, skip) {
			return nil, false
		}
	}

	var best *Route
	for i := range t.routes {
		r := &t.routes[i]
		if r.Pattern == requestPath {
			return &r.Requirements, true
		}
		if matchPattern(requestPath, r.Pattern) {
			if best == nil || len(r.Pattern) > len(best.Pattern) {
				best = r
			}
		}
	}
	if best != nil {
		return &best.Requirements, true
	}
	return nil, false
}

// Routes returns a copy of the configured routes.
func (t *RouteTable) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

func matchPattern(requestPath, pattern string) bool {
	if requestPath == pattern {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		return requestPath == prefix || strings.HasPrefix(requestPath, prefix+"/")
	}
	return false
}
