package script

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Shopify/go-lua"
)

// setupSandbox creates a safe Lua environment: base, string, table and math
// libraries only, with the loaders and process-facing functions removed.
func setupSandbox(l *lua.State) {
	lua.Require(l, "_G", lua.BaseOpen, true)
	l.Pop(1)
	lua.Require(l, "string", lua.StringOpen, true)
	l.Pop(1)
	lua.Require(l, "table", lua.TableOpen, true)
	l.Pop(1)
	lua.Require(l, "math", lua.MathOpen, true)
	l.Pop(1)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "print"} {
		l.PushNil()
		l.SetGlobal(name)
	}

	l.Register("json_encode", jsonEncode)
	l.Register("json_decode", jsonDecode)
	l.Register("str_trim", strTrim)
	l.Register("str_contains", strContains)
}

// pushValue converts a Go value to Lua.
func pushValue(l *lua.State, v any) {
	switch val := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(val)
	case int:
		l.PushInteger(val)
	case int64:
		l.PushInteger(int(val))
	case uint64:
		l.PushInteger(int(val))
	case float64:
		l.PushNumber(val)
	case string:
		l.PushString(val)
	case []any:
		l.NewTable()
		for i, item := range val {
			l.PushInteger(i + 1)
			pushValue(l, item)
			l.SetTable(-3)
		}
	case map[string]any:
		l.NewTable()
		for k, item := range val {
			l.PushString(k)
			pushValue(l, item)
			l.SetTable(-3)
		}
	default:
		// Last resort: round-trip through JSON.
		if data, err := json.Marshal(val); err == nil {
			l.PushString(string(data))
		} else {
			l.PushNil()
		}
	}
}

// pullValue converts the Lua value at idx to Go. Tables with consecutive
// integer keys starting at 1 become slices, everything else becomes a
// string-keyed map.
func pullValue(l *lua.State, idx int) any {
	switch l.TypeOf(idx) {
	case lua.TypeNil:
		return nil
	case lua.TypeBoolean:
		return l.ToBoolean(idx)
	case lua.TypeNumber:
		n, _ := l.ToNumber(idx)
		return n
	case lua.TypeString:
		s, _ := l.ToString(idx)
		return s
	case lua.TypeTable:
		return pullTable(l, idx)
	default:
		return nil
	}
}

func pullTable(l *lua.State, idx int) any {
	l.PushValue(idx)
	defer l.Pop(1)

	m := make(map[string]any)
	var arr []any
	arrayLike := true

	l.PushNil()
	for l.Next(-2) {
		v := pullValue(l, -1)
		switch l.TypeOf(-2) {
		case lua.TypeNumber:
			n, _ := l.ToNumber(-2)
			if arrayLike && int(n) == len(arr)+1 {
				arr = append(arr, v)
			} else {
				arrayLike = false
			}
			m[strconv.FormatFloat(n, 'g', -1, 64)] = v
		case lua.TypeString:
			arrayLike = false
			key, _ := l.ToString(-2)
			m[key] = v
		default:
			arrayLike = false
		}
		l.Pop(1) // pop the value, keep the key for Next
	}

	if arrayLike && len(arr) > 0 {
		return arr
	}
	return m
}

func jsonEncode(l *lua.State) int {
	v := pullValue(l, 1)
	data, err := json.Marshal(v)
	if err != nil {
		l.PushNil()
		return 1
	}
	l.PushString(string(data))
	return 1
}

func jsonDecode(l *lua.State) int {
	s := lua.CheckString(l, 1)
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		l.PushNil()
		return 1
	}
	pushValue(l, v)
	return 1
}

func strTrim(l *lua.State) int {
	s := lua.CheckString(l, 1)
	l.PushString(strings.TrimSpace(s))
	return 1
}

func strContains(l *lua.State) int {
	s := lua.CheckString(l, 1)
	sub := lua.CheckString(l, 2)
	l.PushBoolean(strings.Contains(s, sub))
	return 1
}
