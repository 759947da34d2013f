// Package mangle builds the symbol names of concrete entities.
//
// Every name is a sequence of parts joined with '_'. A part holding no '_'
// and no '$' is written as is; any other part is written raw behind its
// byte length:
//
//	"My_Rec" -> "$6$My_Rec"
//
// A plain part never starts with '$', so a reader always knows where a part
// ends and two different part sequences never produce the same string.
// Nested names are prefixed, not rewritten, so a name grows linearly with
// the nesting of the types inside it.
//
// Compiler-made names start with a '$' marker followed by a letter
// ("$tuple", "$drop"), which a length prefix never produces.
package mangle

import (
	"strconv"
	"strings"
)

const sep = "_"

func plain(part string) bool {
	return !strings.ContainsAny(part, "$_")
}

// Escape makes a single part safe to join.
func Escape(part string) string {
	if plain(part) {
		return part
	}
	return "$" + strconv.Itoa(len(part)) + "$" + part
}

// Join escapes and joins parts. Parts that are already mangled names get a
// length prefix and are otherwise kept intact.
func Join(parts ...string) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(Escape(p))
	}
	return b.String()
}

// Split is the inverse of Join.
func Split(name string) ([]string, bool) {
	var parts []string
	for {
		var part string
		if strings.HasPrefix(name, "$") {
			end := strings.IndexByte(name[1:], '$')
			if end < 0 {
				return nil, false
			}
			n, err := strconv.Atoi(name[1 : 1+end])
			if err != nil || n < 0 || 2+end+n > len(name) {
				return nil, false
			}
			part, name = name[2+end:2+end+n], name[2+end+n:]
		} else {
			i := strings.IndexByte(name, '_')
			if i < 0 {
				i = len(name)
			}
			part, name = name[:i], name[i:]
			if strings.Contains(part, "$") {
				return nil, false
			}
		}
		parts = append(parts, part)
		if name == "" {
			return parts, true
		}
		if !strings.HasPrefix(name, sep) {
			return nil, false
		}
		name = name[len(sep):]
	}
}

// JoinRaw joins an unescaped synthetic marker with escaped parts.
func JoinRaw(marker string, parts ...string) string {
	if len(parts) == 0 {
		return marker
	}
	return marker + sep + Join(parts...)
}

// Method names an inline method: Type_method.
func Method(typeName, method string) string {
	return Join(typeName, method)
}

// TraitMethod names a trait implementation method: Type_Trait_method.
func TraitMethod(typeName, trait, method string) string {
	return Join(typeName, trait, method)
}

// Instance names a generic instantiation: base followed by the canonical
// names of the type arguments in declaration order.
func Instance(base string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, base)
	parts = append(parts, args...)
	return Join(parts...)
}

// Closure names the n-th closure lowered inside enclosing.
func Closure(enclosing string, n int) string {
	return enclosing + "$closure" + strconv.Itoa(n)
}

// Env names the capture environment record of the n-th closure in enclosing.
func Env(enclosing string, n int) string {
	return enclosing + "$env" + strconv.Itoa(n)
}

// DropGlue names the release function synthesised for a type.
func DropGlue(canonical string) string {
	return JoinRaw("$drop", canonical)
}
