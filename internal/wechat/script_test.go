package wechat

import "testing"

func TestEscapeAppleScript(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`plain`, `plain`},
		{`say "hi"`, `say \"hi\"`},
		{`back\slash`, `back\\slash`},
		{`both "\"`, `both \"\\\"`},
		{`中文訊息`, `中文訊息`},
	}
	for _, tc := range cases {
		if got := escapeAppleScript(tc.in); got != tc.want {
			t.Errorf("escapeAppleScript(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
