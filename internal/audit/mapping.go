package audit

import (
	"net/http"
	"strings"
)

// ActionResource holds action and resource derived from an HTTP method and route.
type ActionResource struct {
	Action   string
	Resource string
}

const apiPrefix = "/api/v1"

// Membership routes are audited as user_added, user_removed, role_changed on resource "user".
var routeOverrides = map[string]ActionResource{
	http.MethodPost + " " + apiPrefix + "/companies/:id/members":           {Action: "user_added", Resource: "user"},
	http.MethodDelete + " " + apiPrefix + "/companies/:id/members/:userId": {Action: "user_removed", Resource: "user"},
	http.MethodPatch + " " + apiPrefix + "/companies/:id/members/:userId":  {Action: "role_changed", Resource: "user"},
	http.MethodGet + " " + apiPrefix + "/me":                               {Action: "get", Resource: "user"},
	http.MethodPut + " " + apiPrefix + "/me":                               {Action: "update", Resource: "user"},
}

// ParseRoute returns action and resource for a gin route template
// (e.g. POST /api/v1/companies/:id/automation-rules -> create/automation_rule).
//
// A route ending in a parameter is an item operation (get, update, delete) on the
// collection before it. A route ending in a plural segment is a collection operation
// (list, create). Any other trailing segment is a verb (run, read, evaluate) applied to the
// nearest collection before it.
func ParseRoute(method, route string) ActionResource {
	if ar, ok := routeOverrides[method+" "+route]; ok {
		return ar
	}
	var segs []string
	for _, s := range strings.Split(strings.TrimPrefix(route, apiPrefix), "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) == 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	last := segs[len(segs)-1]
	switch {
	case isParam(last):
		return ActionResource{Action: itemAction(method), Resource: nearestResource(segs[:len(segs)-1])}
	case len(segs) > 1 && !isCollection(last):
		return ActionResource{Action: strings.ReplaceAll(last, "-", "_"), Resource: nearestResource(segs[:len(segs)-1])}
	default:
		return ActionResource{Action: collectionAction(method), Resource: singular(last)}
	}
}

func isParam(seg string) bool { return strings.HasPrefix(seg, ":") || strings.HasPrefix(seg, "*") }

func isCollection(seg string) bool { return strings.HasSuffix(seg, "s") }

func nearestResource(segs []string) string {
	for i := len(segs) - 1; i >= 0; i-- {
		if !isParam(segs[i]) {
			return singular(segs[i])
		}
	}
	return "unknown"
}

// singular turns "automation-rules" into "automation_rule" and "companies" into "company".
func singular(seg string) string {
	s := strings.ReplaceAll(seg, "-", "_")
	switch {
	case strings.HasSuffix(s, "ies"):
		return strings.TrimSuffix(s, "ies") + "y"
	case strings.HasSuffix(s, "s"):
		return strings.TrimSuffix(s, "s")
	default:
		return s
	}
}

func itemAction(method string) string {
	switch method {
	case http.MethodGet:
		return "get"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

func collectionAction(method string) string {
	switch method {
	case http.MethodGet:
		return "list"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
