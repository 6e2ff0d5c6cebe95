package main

import (
	"math/big"
	"testing"

	"github.com/wippyai/isolates/xidata"
)

func TestParseBinding(t *testing.T) {
	kinds := xidata.NewManager().Kinds()

	tests := []struct {
		in   string
		name string
		want any
	}{
		{"a:int=42", "a", 42},
		{"b:int64=-7", "b", int64(-7)},
		{"c:float=1.5", "c", 1.5},
		{"d:bool=true", "d", true},
		{"e:string=hi there", "e", "hi there"},
		{"f=plain", "f", "plain"},
		{"g:none=", "g", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, v, err := parseBinding(tt.in, kinds)
			if err != nil {
				t.Fatalf("parseBinding: %v", err)
			}
			if name != tt.name || v != tt.want {
				t.Fatalf("got %s=%#v, want %s=%#v", name, v, tt.name, tt.want)
			}
		})
	}
}

func TestParseBindingBytesAndBigInt(t *testing.T) {
	kinds := xidata.NewManager().Kinds()

	_, v, err := parseBinding("raw:bytes=abc", kinds)
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	if b, ok := v.([]byte); !ok || string(b) != "abc" {
		t.Fatalf("bytes = %#v", v)
	}

	_, v, err = parseBinding("n:bigint=123456789012345678901234567890", kinds)
	if err != nil {
		t.Fatalf("bigint: %v", err)
	}
	want, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	if n, ok := v.(*big.Int); !ok || n.Cmp(want) != 0 {
		t.Fatalf("bigint = %#v", v)
	}
}

func TestParseBindingErrors(t *testing.T) {
	kinds := xidata.NewManager().Kinds()
	for _, in := range []string{"noequals", ":int=1", "x:complex=1", "x:int=abc", "x:bool=maybe", "x:none=1"} {
		if _, _, err := parseBinding(in, kinds); err == nil {
			t.Fatalf("%q: expected error", in)
		}
	}
}

func TestWitTypeStr(t *testing.T) {
	got := map[string]string{}
	for _, k := range xidata.NewManager().Kinds() {
		got[k.Name] = witTypeStr(k.WIT)
	}
	want := map[string]string{"none": "unit", "bytes": "list<u8>", "string": "string", "float": "f64", "int": "s64"}
	for name, w := range want {
		if got[name] != w {
			t.Fatalf("%s: got %q, want %q", name, got[name], w)
		}
	}
}
