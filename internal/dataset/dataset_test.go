package dataset

import (
	"net/url"
	"strings"
	"testing"

	"github.com/geosvc/arcproxy/internal/config"
)

func testTable() Table {
	return NewTable(config.Config{
		FloodUpstreamURL: "https://flood.example/arcgis/rest/services/28/query",
		WaterUpstreamURL: "https://water.example/arcgis/rest/services/6/query",
	})
}

func TestFromPath(t *testing.T) {
	cases := []struct {
		path string
		want Kind
	}{
		{"/", Flood},
		{"", Flood},
		{"/flood", Flood},
		{"/water", Water},
		{"/water/", Water},
		{"/WATER", Water},
		{"/api/v1/water", Water},
		{"/unknown", Flood},
		{"/waterfall", Flood},
		{"/flood/extra", Flood},
	}
	for _, c := range cases {
		if got := FromPath(c.path); got != c.want {
			t.Fatalf("FromPath(%q)=%s want %s", c.path, got, c.want)
		}
	}
}

func TestResolve_FillsDefaultsWhenAbsent(t *testing.T) {
	tbl := testTable()

	resolved, err := tbl.Resolve(Flood, url.Values{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	u, err := url.Parse(resolved)
	if err != nil {
		t.Fatalf("parse resolved: %v", err)
	}
	q := u.Query()
	for k, want := range map[string]string{
		"f":                 "json",
		"returnGeometry":    "true",
		"outFields":         "*",
		"where":             "1=1",
		"resultRecordCount": "2000",
	} {
		if got := q.Get(k); got != want {
			t.Fatalf("default %s=%q want %q", k, got, want)
		}
	}
	if !strings.HasPrefix(resolved, "https://flood.example/arcgis/rest/services/28/query?") {
		t.Fatalf("resolved=%q lost the base endpoint", resolved)
	}
}

func TestResolve_InboundValuesWin(t *testing.T) {
	tbl := testTable()

	inbound := url.Values{}
	inbound.Set("where", "FLD_ZONE='AE'")
	inbound.Set("resultRecordCount", "5")
	inbound.Set("geometry", "-122.4,37.7")

	resolved, err := tbl.Resolve(Flood, inbound)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	u, _ := url.Parse(resolved)
	q := u.Query()

	if got := q.Get("where"); got != "FLD_ZONE='AE'" {
		t.Fatalf("where=%q client value must pass through", got)
	}
	if got := q.Get("resultRecordCount"); got != "5" {
		t.Fatalf("resultRecordCount=%q client value must pass through", got)
	}
	if got := q.Get("geometry"); got != "-122.4,37.7" {
		t.Fatalf("geometry=%q arbitrary params must pass through", got)
	}
	// untouched defaults still filled
	if got := q.Get("f"); got != "json" {
		t.Fatalf("f=%q want json", got)
	}
}

func TestResolve_EmptyPresentValueIsNotOverridden(t *testing.T) {
	tbl := testTable()

	inbound := url.Values{}
	inbound.Set("outFields", "")

	resolved, err := tbl.Resolve(Flood, inbound)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	u, _ := url.Parse(resolved)
	if _, present := u.Query()["outFields"]; !present {
		t.Fatal("explicitly empty parameter vanished")
	}
	if got := u.Query().Get("outFields"); got != "" {
		t.Fatalf("outFields=%q want empty; present params must win over defaults", got)
	}
}

func TestResolve_ResultCapVariesByKind(t *testing.T) {
	tbl := testTable()

	rf, err := tbl.Resolve(Flood, url.Values{})
	if err != nil {
		t.Fatalf("Resolve flood: %v", err)
	}
	rw, err := tbl.Resolve(Water, url.Values{})
	if err != nil {
		t.Fatalf("Resolve water: %v", err)
	}

	uf, _ := url.Parse(rf)
	uw, _ := url.Parse(rw)
	if got := uf.Query().Get("resultRecordCount"); got != "2000" {
		t.Fatalf("flood cap=%q want 2000", got)
	}
	if got := uw.Query().Get("resultRecordCount"); got != "1000" {
		t.Fatalf("water cap=%q want 1000", got)
	}
}

func TestResolve_ParamOrderIsCanonical(t *testing.T) {
	tbl := testTable()

	q1, _ := url.ParseQuery("b=2&a=1")
	q2, _ := url.ParseQuery("a=1&b=2")

	r1, err := tbl.Resolve(Water, q1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	r2, err := tbl.Resolve(Water, q2)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r1 != r2 {
		t.Fatalf("same parameters resolved differently:\n r1=%s\n r2=%s", r1, r2)
	}
}

func TestResolve_MissingUpstreamErrors(t *testing.T) {
	tbl := NewTable(config.Config{FloodUpstreamURL: "https://flood.example/query"})

	if _, err := tbl.Resolve(Water, url.Values{}); err == nil {
		t.Fatal("expected error for unconfigured upstream")
	}
}
