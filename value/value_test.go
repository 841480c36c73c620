package value

import (
	"reflect"
	"testing"
)

func mustParse(t *testing.T, raw string) Value {
	t.Helper()
	v, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	return v
}

func TestParse_Kinds(t *testing.T) {
	tests := []struct {
		raw  string
		kind Kind
	}{
		{"15", KindNumber},
		{"-3.5", KindNumber},
		{"hello world", KindText},
		{`"quoted text"`, KindText},
		{`{"Name":"Alice","Age":15}`, KindStruct},
		{`[1,2,3]`, KindList},
		{"true", KindText}, // no boolean variant
		{"null", KindText},
	}
	for _, tt := range tests {
		v := mustParse(t, tt.raw)
		if v.Kind() != tt.kind {
			t.Errorf("Parse(%q).Kind() = %v, want %v", tt.raw, v.Kind(), tt.kind)
		}
	}
}

func TestParse_QuotedString(t *testing.T) {
	v := mustParse(t, `"Math Science"`)
	if v.Kind() != KindText {
		t.Fatalf("kind = %v, want TEXT", v.Kind())
	}
	if got := v.String(); got != `"Math Science"` {
		t.Errorf("String() = %s", got)
	}
}

func TestParse_MalformedJSON(t *testing.T) {
	for _, raw := range []string{`{"Name":`, `{"a" "b"}`, `[1,2`, `{"a":1}extra`} {
		if _, err := Parse(raw); err == nil {
			t.Errorf("Parse(%q) should fail", raw)
		}
	}
}

func TestString_PreservesFieldOrder(t *testing.T) {
	raw := `{"Name":"Alice","Age":15,"Class":"A"}`
	v := mustParse(t, raw)
	if got := v.String(); got != raw {
		t.Errorf("String() = %s, want %s", got, raw)
	}
}

func TestCanonical_SortsFields(t *testing.T) {
	a := mustParse(t, `{"b":2,"a":1}`)
	b := mustParse(t, `{"a":1,"b":2}`)
	if a.Canonical() != b.Canonical() {
		t.Errorf("canonical forms differ: %s vs %s", a.Canonical(), b.Canonical())
	}
	if !Equal(a, b) {
		t.Error("values with reordered fields should be equal")
	}
	if got, want := a.Canonical(), `{"a":1,"b":2}`; got != want {
		t.Errorf("Canonical() = %s, want %s", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	raws := []string{
		`{"Name":"Alice","Age":15,"Subjects":["Math","Science"]}`,
		`[{"x":1},{"x":2}]`,
		`"plain"`,
		`42`,
		`-0.25`,
	}
	for _, raw := range raws {
		v := mustParse(t, raw)
		again := mustParse(t, v.String())
		if !Equal(v, again) {
			t.Errorf("round trip changed %q to %q", raw, again.String())
		}
	}
}

func TestField(t *testing.T) {
	v := mustParse(t, `{"Name":"Alice","Scores":[10,20],"Addr":{"City":"Berlin"}}`)

	if got, ok := v.Field("Name"); !ok || got.String() != `"Alice"` {
		t.Errorf("Field(Name) = %v, %v", got, ok)
	}
	if got, ok := v.Field("Scores.1"); !ok {
		t.Error("Field(Scores.1) should resolve")
	} else if f, _ := got.Number(); f != 20 {
		t.Errorf("Scores.1 = %v, want 20", f)
	}
	if got, ok := v.Field("Addr.City"); !ok || got.String() != `"Berlin"` {
		t.Errorf("Field(Addr.City) = %v, %v", got, ok)
	}
	if _, ok := v.Field("Missing"); ok {
		t.Error("absent field should not resolve")
	}
	if _, ok := v.Field("Scores.5"); ok {
		t.Error("out-of-range index should not resolve")
	}
	if _, ok := v.Field("Name.x"); ok {
		t.Error("path into a text leaf should not resolve")
	}
}

func TestTokens(t *testing.T) {
	v := mustParse(t, `{"Name":"Alice Smith","Age":15,"Subjects":["Math","Science"]}`)
	got := v.Tokens()
	want := []string{"alice", "smith", "15", "math", "science"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens() = %v, want %v", got, want)
	}
}

func TestFlatten(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`path C:\data here`, `path C:\data here`},
		{`say "hi" there`, `say "hi" there`},
		{`{"Name":"Alice","Age":15}`, "Name Alice Age 15"},
		{`[1,"two",3]`, "1 two 3"},
		{`{"Dir":"C:\\data"}`, `Dir C:\data`},
		{"42", "42"},
	}
	for _, tt := range tests {
		v := mustParse(t, tt.raw)
		if got := v.Flatten(); got != tt.want {
			t.Errorf("Flatten(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCompare(t *testing.T) {
	if Compare(Number(2), Number(10)) != -1 {
		t.Error("2 should sort before 10 numerically")
	}
	// Text that parses numerically compares numerically.
	if Compare(Text("2"), Text("10")) != -1 {
		t.Error(`"2" should sort before "10"`)
	}
	if Compare(Text("apple"), Text("banana")) != -1 {
		t.Error("apple should sort before banana")
	}
	if Compare(Number(5), Number(5)) != 0 {
		t.Error("equal numbers should compare 0")
	}
	// Mixed number/text falls back to lexicographic.
	if Compare(Text("apple"), Number(3)) == 0 {
		t.Error("apple and 3 should not compare equal")
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{15, "15"},
		{-3, "-3"},
		{2.5, "2.5"},
		{0, "0"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.in); got != tt.want {
			t.Errorf("FormatNumber(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
