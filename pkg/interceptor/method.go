package interceptor

import (
	"fmt"
	"path"
	"strings"
)

// MethodKey identifies an enhanced method: the declaring type, the method
// name and its parameter/return shape. Two keys are equal only when all three
// parts are equal, so overloads with different shapes get separate chains.
type MethodKey struct {
	// Type is the declaring type, e.g. "inventory.Service".
	// Empty for package-level functions.
	Type string `yaml:"type"`

	// Method is the method or function name, e.g. "Lookup".
	Method string `yaml:"method"`

	// Signature describes parameters and results, e.g. "(string) (int, error)".
	Signature string `yaml:"signature"`
}

// NewMethodKey creates a method key.
func NewMethodKey(typ, method, signature string) MethodKey {
	return MethodKey{Type: typ, Method: method, Signature: signature}
}

// String renders the key as Type#Method(Signature).
func (k MethodKey) String() string {
	var b strings.Builder
	if k.Type != "" {
		b.WriteString(k.Type)
		b.WriteByte('#')
	}
	b.WriteString(k.Method)
	if k.Signature != "" {
		if !strings.HasPrefix(k.Signature, "(") {
			b.WriteByte(' ')
		}
		b.WriteString(k.Signature)
	}
	return b.String()
}

// IsZero reports whether the key has no method name.
func (k MethodKey) IsZero() bool {
	return k.Method == ""
}

// Validate checks that the key names a method.
func (k MethodKey) Validate() error {
	if k.Method == "" {
		return fmt.Errorf("method key %q: method name is required", k.String())
	}
	return nil
}

// Match reports whether the key matches a pointcut pattern. Patterns use
// path.Match syntax against the Type and Method parts separately, so
// "inventory.*#Get*" matches every Get method of every inventory type.
// A pattern without '#' only matches the method name.
func (k MethodKey) Match(pattern string) bool {
	typePattern, methodPattern := splitPattern(pattern)

	if ok, err := path.Match(typePattern, k.Type); err != nil || !ok {
		return false
	}
	ok, err := path.Match(methodPattern, k.Method)
	return err == nil && ok
}

// ValidatePattern checks that a pointcut pattern is well formed.
func ValidatePattern(pattern string) error {
	typePattern, methodPattern := splitPattern(pattern)
	if methodPattern == "" {
		return fmt.Errorf("pointcut %q: method pattern is empty", pattern)
	}
	if _, err := path.Match(typePattern, ""); err != nil {
		return fmt.Errorf("pointcut %q: %w", pattern, err)
	}
	if _, err := path.Match(methodPattern, ""); err != nil {
		return fmt.Errorf("pointcut %q: %w", pattern, err)
	}
	return nil
}

func splitPattern(pattern string) (typePattern, methodPattern string) {
	typePattern, methodPattern, found := strings.Cut(pattern, "#")
	if !found {
		methodPattern, typePattern = typePattern, "*"
	}
	// Signatures are not matched.
	if i := strings.IndexByte(methodPattern, '('); i >= 0 {
		methodPattern = methodPattern[:i]
	}
	return typePattern, methodPattern
}
