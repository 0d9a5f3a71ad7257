package autodetect

import "testing"

func TestHostLabelDisplayName(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://mcp.example.com/mcp", "Example"},
		{"https://sub.example.co.uk/mcp", "Co"},
		{"https://192.168.1.1:8443/mcp", "1"},
		{"https://localhost:8080/mcp", "Localhost"},
		{"https://notion.com", "Notion"},
	}
	for _, c := range cases {
		if got := hostLabelDisplayName(c.url); got != c.want {
			t.Errorf("hostLabelDisplayName(%q) = %q, want %q", c.url, got, c.want)
		}
	}
}

func TestCapitalizeFirst(t *testing.T) {
	if got := capitalizeFirst(""); got != "" {
		t.Fatalf("capitalizeFirst(\"\") = %q, want \"\"", got)
	}
	if got := capitalizeFirst("example"); got != "Example" {
		t.Fatalf("capitalizeFirst(example) = %q, want Example", got)
	}
}
