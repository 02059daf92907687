package config

import "testing"

func TestSubstituteExpandsBracedAndBareVars(t *testing.T) {
	lookup := func(name string) (string, bool) {
		switch name {
		case "HOST":
			return "db.internal", true
		case "PORT":
			return "5432", true
		default:
			return "", false
		}
	}

	got := Substitute("postgres://${HOST}:$PORT/geo", lookup)
	want := "postgres://db.internal:5432/geo"
	if got != want {
		t.Errorf("Substitute() = %q, want %q", got, want)
	}
}

func TestSubstituteLeavesUnsetVarsUnexpanded(t *testing.T) {
	lookup := func(string) (string, bool) { return "", false }

	got := Substitute("postgres://${MISSING}/geo", lookup)
	want := "postgres://${MISSING}/geo"
	if got != want {
		t.Errorf("Substitute() = %q, want %q", got, want)
	}
}

func TestSubstituteEnvUsesProcessEnvironment(t *testing.T) {
	t.Setenv("TILESERV_TEST_VAR", "hello")
	got := SubstituteEnv("value: $TILESERV_TEST_VAR")
	want := "value: hello"
	if got != want {
		t.Errorf("SubstituteEnv() = %q, want %q", got, want)
	}
}
