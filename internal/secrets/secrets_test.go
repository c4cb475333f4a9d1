package secrets

import (
	"reflect"
	"testing"
)

func TestParseKeys(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"json array", `["key-a","key-b"]`, []string{"key-a", "key-b"}},
		{"json object", `{"keys":["key-a","key-b"]}`, []string{"key-a", "key-b"}},
		{"comma separated", "key-a, key-b,key-c", []string{"key-a", "key-b", "key-c"}},
		{"single plain key", "key-a", []string{"key-a"}},
		{"blanks dropped", `["key-a","","  "]`, []string{"key-a"}},
		{"empty", "  ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseKeys(tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseKeys(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
