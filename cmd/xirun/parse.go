package main

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/isolates/xidata"
)

// parseBinding parses "name:kind=value" into a binding name and a value of
// the named shareable kind.
func parseBinding(s string, kinds []xidata.KindInfo) (string, any, error) {
	lhs, literal, ok := strings.Cut(s, "=")
	if !ok {
		return "", nil, fmt.Errorf("binding %q: want name:kind=value", s)
	}
	name, kindName, ok := strings.Cut(lhs, ":")
	if !ok {
		kindName = "string"
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, fmt.Errorf("binding %q: empty name", s)
	}
	for _, k := range kinds {
		if k.Name == strings.TrimSpace(kindName) {
			v, err := convertArg(literal, k)
			if err != nil {
				return "", nil, fmt.Errorf("binding %q: %w", s, err)
			}
			return name, v, nil
		}
	}
	return "", nil, fmt.Errorf("binding %q: unknown kind %q", s, kindName)
}

func convertArg(value string, k xidata.KindInfo) (any, error) {
	switch t := k.WIT.(type) {
	case wit.String:
		return value, nil
	case wit.Bool:
		return strconv.ParseBool(value)
	case wit.F64:
		return strconv.ParseFloat(value, 64)
	case wit.S64:
		switch k.Type {
		case xidata.TypeFor[*big.Int]():
			n, ok := new(big.Int).SetString(value, 10)
			if !ok {
				return nil, fmt.Errorf("invalid integer %q", value)
			}
			return n, nil
		case xidata.TypeFor[int64]():
			return strconv.ParseInt(value, 10, 64)
		default:
			return strconv.Atoi(value)
		}
	case *wit.TypeDef:
		switch t.Kind.(type) {
		case *wit.List:
			return []byte(value), nil
		case *wit.Tuple:
			if value != "" {
				return nil, fmt.Errorf("none takes no value")
			}
			return nil, nil
		}
	}
	return nil, fmt.Errorf("kind %s cannot be parsed from text", k.Name)
}

func witTypeStr(t wit.Type) string {
	switch v := t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S64:
		return "s64"
	case wit.F64:
		return "f64"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		switch k := v.Kind.(type) {
		case *wit.List:
			return "list<" + witTypeStr(k.Type) + ">"
		case *wit.Tuple:
			if len(k.Types) == 0 {
				return "unit"
			}
		}
		return "typedef"
	default:
		return fmt.Sprintf("%T", t)
	}
}
