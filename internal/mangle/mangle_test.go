package mangle

import (
	"slices"
	"strings"
	"testing"
)

func TestMangledNames(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{Method("Point", "new"), "Point_new"},
		{TraitMethod("Point", "Show", "show"), "Point_Show_show"},
		{Instance("Box", "i32"), "Box_i32"},
		{Instance("Pair", Instance("Box", "i32"), "str"), "Pair_$7$Box_i32_str"},
		{Method("My_Rec", "go"), "$6$My_Rec_go"},
		{Closure("main", 0), "main$closure0"},
		{Env("main", 2), "main$env2"},
		{DropGlue("Vec_i32"), "$drop_$7$Vec_i32"},
		{JoinRaw("$tuple"), "$tuple"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q want %q", tt.got, tt.want)
		}
	}
}

// Sequences that would collide under plain '_' joining stay distinct.
func TestJoinIsInjective(t *testing.T) {
	pairs := [][2][]string{
		{{"a_b", "c"}, {"a", "b_c"}},
		{{"Box", "i32"}, {"Box_i32"}},
		{{"x$", "y"}, {"x", "$y"}},
		{{"T", "m"}, {"T_m"}},
		{{"$1$a"}, {"a"}},
	}
	for _, p := range pairs {
		if a, b := Join(p[0]...), Join(p[1]...); a == b {
			t.Fatalf("%q and %q both mangle to %q", p[0], p[1], a)
		}
	}

	seen := map[string][2]string{}
	parts := []string{"a", "b", "_", "$", "a_", "_b", "a$b", "$1$a", "12", "$"}
	for _, x := range parts {
		for _, y := range parts {
			name := Join(x, y)
			if prev, ok := seen[name]; ok && prev != [2]string{x, y} {
				t.Fatalf("%q collides with %q as %q", [2]string{x, y}, prev, name)
			}
			seen[name] = [2]string{x, y}
			back, ok := Split(name)
			if !ok || !slices.Equal(back, []string{x, y}) {
				t.Fatalf("Split(%q) = %q, %v", name, back, ok)
			}
		}
	}
}

// Wrapping a name again adds a prefix instead of re-escaping the inner
// name, so deep nesting stays small.
func TestNestedNamesGrowLinearly(t *testing.T) {
	name := "i32"
	prev := len(name)
	for depth := 1; depth <= 64; depth++ {
		name = Instance("Box", name)
		if grow := len(name) - prev; grow > len("Box_$000$") {
			t.Fatalf("depth %d grew by %d bytes: %q", depth, grow, name)
		}
		prev = len(name)
	}
	parts, ok := Split(name)
	if !ok || len(parts) != 2 || parts[0] != "Box" || !strings.HasPrefix(parts[1], "Box_$") {
		t.Fatalf("Split(%q) = %q, %v", name, parts, ok)
	}
}

func TestSplitRejectsMalformed(t *testing.T) {
	for _, name := range []string{"$x$ab", "$9$ab", "a$b", "$2$abc", "$1"} {
		if parts, ok := Split(name); ok {
			t.Errorf("Split(%q) = %q, want failure", name, parts)
		}
	}
}
