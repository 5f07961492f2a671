package main

import (
	"reflect"
	"testing"
)

func TestParseInputs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", want: map[string]any{}},
		{
			name:  "pairs keep json types",
			pairs: []string{"inputA=11", "inputB=15", "label=hello", "flag=true", "list=[1,2]"},
			want: map[string]any{
				"inputA": float64(11),
				"inputB": float64(15),
				"label":  "hello",
				"flag":   true,
				"list":   []any{float64(1), float64(2)},
			},
		},
		{
			name:  "pairs override json object",
			raw:   `{"inputA":1,"time":2000}`,
			pairs: []string{"inputA=11"},
			want:  map[string]any{"inputA": float64(11), "time": float64(2000)},
		},
		{name: "value may contain equals", pairs: []string{"expr=a=b"}, want: map[string]any{"expr": "a=b"}},
		{name: "null object", raw: "null", pairs: []string{"a=1"}, want: map[string]any{"a": float64(1)}},
		{name: "missing equals", pairs: []string{"inputA"}, wantErr: true},
		{name: "empty key", pairs: []string{"=1"}, wantErr: true},
		{name: "malformed json", raw: `{"a":`, wantErr: true},
		{name: "json array", raw: `[1]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseInputs(tt.raw, tt.pairs)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseInputs() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseInputs() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("parseInputs() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
