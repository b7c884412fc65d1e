package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                     "/",
		"/metrics":                             "/metrics",
		"/login":                               "/login",
		"/v1/roles":                            "/v1/roles",
		"/v1/roles/17/permissions":             "/v1/roles/:id/permissions",
		"/v1/permissions/3/capabilities":       "/v1/permissions/:id/capabilities",
		"/v1/users/42/assignments":             "/v1/users/:id/assignments",
		"/v1/users/42/company-roles":           "/v1/users/:id/company-roles",
		"/v1/users/42/unknown":                 "/v1/users/42/unknown",
		"/v1/activity?limit=10":                "/v1/activity",
		"/v1/roles/17/permissions?verbose=yes": "/v1/roles/:id/permissions",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
