package router

import "testing"

func TestStaticBeatsParamAndWildcard(t *testing.T) {
	r := New()
	mustAdd(t, r, "/department/user/info", HandlerComplete, "static")
	mustAdd(t, r, "/department/user/:id", HandlerComplete, "param")
	mustAdd(t, r, "/department/user/*", HandlerComplete, "wildcard")

	res := r.Match("GET", "/department/user/info")
	if !res.Matched || res.Config.Handler != "static" {
		t.Fatalf("expected static route to win, got %+v", res)
	}
}

func TestParamBeatsWildcard(t *testing.T) {
	r := New()
	mustAdd(t, r, "/department/user/:id", HandlerComplete, "param")
	mustAdd(t, r, "/department/user/*", HandlerComplete, "wildcard")

	res := r.Match("GET", "/department/user/7")
	if !res.Matched || res.Config.Handler != "param" {
		t.Fatalf("expected param route to win, got %+v", res)
	}
	if res.Params["id"] != "7" {
		t.Fatalf("expected captured id=7, got %+v", res.Params)
	}
}

func TestLongestMatchWins(t *testing.T) {
	r := New()
	mustAdd(t, r, "/department/user/info", HandlerComplete, "shallow-static")
	mustAdd(t, r, "/department/user/:info/:id", HandlerComplete, "deep-param")

	res := r.Match("GET", "/department/user/info/1")
	if !res.Matched || res.Config.Handler != "deep-param" {
		t.Fatalf("expected deeper param route to win over shallower static, got %+v", res)
	}
}

func TestDeeperStaticBeatsShallowerWildcard(t *testing.T) {
	r := New()
	mustAdd(t, r, "/department/user/*", HandlerComplete, "wildcard")
	mustAdd(t, r, "/department/user/info/:id", HandlerComplete, "deep-static-param")

	res := r.Match("GET", "/department/user/info/1")
	if !res.Matched || res.Config.Handler != "deep-static-param" {
		t.Fatalf("expected deeper static+param route to win over shallower wildcard, got %+v", res)
	}
}

func TestNoMatch(t *testing.T) {
	r := New()
	mustAdd(t, r, "/department/user/info", HandlerComplete, "static")

	res := r.Match("GET", "/department/user")
	if res.Matched {
		t.Fatalf("expected no match, got %+v", res)
	}
}

func TestInvalidPatternWildcardNotLast(t *testing.T) {
	r := New()
	err := r.AddRoute("GET", "/foo/*/bar", RouteConfig{Kind: HandlerComplete, Handler: "x"})
	if err != ErrInvalidPattern {
		t.Fatalf("expected ErrInvalidPattern, got %v", err)
	}
}

func TestDuplicateRoute(t *testing.T) {
	r := New()
	mustAdd(t, r, "/a/b", HandlerComplete, "first")
	err := r.AddRoute("GET", "/a/b", RouteConfig{Kind: HandlerComplete, Handler: "second"})
	if err != ErrDuplicateRoute {
		t.Fatalf("expected ErrDuplicateRoute, got %v", err)
	}
}

func mustAdd(t *testing.T, r *Router, pattern string, kind HandlerKind, handler any) {
	t.Helper()
	if err := r.AddRoute("GET", pattern, RouteConfig{Kind: kind, Handler: handler}); err != nil {
		t.Fatalf("AddRoute(%q): %v", pattern, err)
	}
}
