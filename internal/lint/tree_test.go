package lint

import "testing"

func TestRangeOfFlowAndQuotedNodes(t *testing.T) {
	tr, err := parseTree(`{"a": {"b": "xy"}, "c": [1, 2], "d": {}, "e": 'it''s'}`)
	if err != nil {
		t.Fatalf("parseTree: %v", err)
	}

	tests := []struct {
		path  []string
		start Position
		end   Position
	}{
		{path: []string{"a", "b"}, start: Position{Character: 7}, end: Position{Character: 16}},
		{path: []string{"a"}, start: Position{Character: 1}, end: Position{Character: 17}},
		{path: []string{"c"}, start: Position{Character: 19}, end: Position{Character: 30}},
		{path: []string{"c", "1"}, start: Position{Character: 28}, end: Position{Character: 29}},
		{path: []string{"d"}, start: Position{Character: 32}, end: Position{Character: 39}},
		{path: []string{"e"}, start: Position{Character: 41}, end: Position{Character: 53}},
	}
	for _, tc := range tests {
		got := tr.rangeOf(tc.path)
		if got.Start != tc.start || got.End != tc.end {
			t.Errorf("rangeOf(%v) = %+v, want start %+v end %+v", tc.path, got, tc.start, tc.end)
		}
	}
}

func TestRangeOfBlockScalar(t *testing.T) {
	tr, err := parseTree("info:\n  description: |\n    line one\n    line two\n  title: x")
	if err != nil {
		t.Fatalf("parseTree: %v", err)
	}
	got := tr.rangeOf([]string{"info", "description"})
	want := Range{Start: Position{Line: 1, Character: 2}, End: Position{Line: 3, Character: 12}}
	if got != want {
		t.Fatalf("rangeOf = %+v, want %+v", got, want)
	}
}

func TestRangeOfMultiLineFlowMapping(t *testing.T) {
	tr, err := parseTree("{\n  \"info\": {\n    \"title\": \"x\"\n  }\n}")
	if err != nil {
		t.Fatalf("parseTree: %v", err)
	}
	got := tr.rangeOf([]string{"info"})
	want := Range{Start: Position{Line: 1, Character: 2}, End: Position{Line: 3, Character: 3}}
	if got != want {
		t.Fatalf("rangeOf = %+v, want %+v", got, want)
	}
}
