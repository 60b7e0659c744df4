package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v2"
)

func TestListFlagSet(t *testing.T) {
	lf := commaListFlag()
	if err := lf.Set("/auth/token,/auth/login"); err != nil {
		t.Fatal(err)
	}

	if d := cmp.Diff([]string{"/auth/token", "/auth/login"}, lf.values); d != "" {
		t.Errorf("unexpected values, diff:\n%s", d)
	}

	if lf.String() != "/auth/token,/auth/login" {
		t.Errorf("unexpected string form: %q", lf.String())
	}
}

func TestListFlagEmpty(t *testing.T) {
	lf := commaListFlag()
	if err := lf.Set(""); err != nil {
		t.Fatal(err)
	}

	if len(lf.values) != 0 {
		t.Errorf("unexpected values: %v", lf.values)
	}
}

func TestListFlagAllowed(t *testing.T) {
	lf := commaListFlag("codahale", "prometheus")
	if err := lf.Set("prometheus"); err != nil {
		t.Fatal(err)
	}

	if err := lf.Set("statsd"); err == nil {
		t.Error("expected an error for a value not allowed")
	}
}

func TestListFlagYAML(t *testing.T) {
	lf := commaListFlag()
	if err := yaml.Unmarshal([]byte(`"/sessions,/token"`), lf); err != nil {
		t.Fatal(err)
	}

	if d := cmp.Diff([]string{"/sessions", "/token"}, lf.values); d != "" {
		t.Errorf("unexpected values, diff:\n%s", d)
	}
}
