package params

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ParamsToBasic converts the checked values of inputs into basic types.
// Keys without a declared input are copied unchanged.
func ParamsToBasic(inputs Inputs, values map[string]interface{}, app *App, useSecurity bool) (map[string]interface{}, error) {
	rval := make(map[string]interface{}, len(values))
	for key, value := range values {
		if input, ok := inputs.Get(key); ok {
			b, err := ValueToBasic(input, value, app, useSecurity)
			if err != nil {
				return nil, fmt.Errorf("failed to convert '%s': %w", key, err)
			}
			value = b
		}
		rval[key] = value
	}
	return rval, nil
}

// ParamsToStrings converts checked values into the flat persisted form:
// one JSON document per top level key.
func ParamsToStrings(inputs Inputs, values map[string]interface{}, app *App, useSecurity bool) (map[string]string, error) {
	basic, err := ParamsToBasic(inputs, values, app, useSecurity)
	if err != nil {
		return nil, err
	}
	rval := make(map[string]string, len(basic))
	for key, value := range basic {
		s, err := Dumps(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode '%s': %w", key, err)
		}
		rval[key] = s
	}
	return rval, nil
}

// ParamsFromStrings restores checked values from their persisted form. With
// ignoreErrors set values that cannot be restored are kept in basic form.
func ParamsFromStrings(ctx context.Context, inputs Inputs, values map[string]string, app *App, ignoreErrors bool) (map[string]interface{}, error) {
	rval := make(map[string]interface{}, len(values))
	for key, s := range values {
		value := SafeLoads(s)
		if input, ok := inputs.Get(key); ok {
			restored, err := ValueFromBasic(ctx, input, value, app, ignoreErrors)
			if err != nil {
				return nil, fmt.Errorf("failed to restore '%s': %w", key, err)
			}
			value = restored
		}
		rval[key] = value
	}
	return rval, nil
}

// SafeLoads decodes a JSON document but leaves scalars other than strings
// and null as the original text; invalid JSON is returned unchanged.
// Numbers nested in lists and maps become int64 or float64.
func SafeLoads(s string) interface{} {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil || dec.More() {
		return s
	}
	switch v.(type) {
	case nil, string, []interface{}, map[string]interface{}:
		return fixNumbers(v)
	}
	return s
}

func fixNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []interface{}:
		for i := range t {
			t[i] = fixNumbers(t[i])
		}
	case map[string]interface{}:
		for k := range t {
			t[k] = fixNumbers(t[k])
		}
	}
	return v
}

// Dumps encodes basic values like a default Python json.dumps with sorted
// keys, so persisted rows stay byte compatible.
func Dumps(v interface{}) (string, error) {
	var buf bytes.Buffer
	if err := dumpValue(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func dumpValue(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case string:
		dumpString(buf, t)
	case int:
		buf.WriteString(strconv.Itoa(t))
	case int64:
		buf.WriteString(strconv.FormatInt(t, 10))
	case float64:
		switch {
		case math.IsNaN(t):
			buf.WriteString("NaN")
		case math.IsInf(t, 1):
			buf.WriteString("Infinity")
		case math.IsInf(t, -1):
			buf.WriteString("-Infinity")
		default:
			buf.WriteString(formatFloat(t))
		}
	case json.Number:
		buf.WriteString(t.String())
	case []string:
		buf.WriteByte('[')
		for i, s := range t {
			if i > 0 {
				buf.WriteString(", ")
			}
			dumpString(buf, s)
		}
		buf.WriteByte(']')
	case []interface{}:
		buf.WriteByte('[')
		for i, el := range t {
			if i > 0 {
				buf.WriteString(", ")
			}
			if err := dumpValue(buf, el); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(", ")
			}
			dumpString(buf, k)
			buf.WriteString(": ")
			if err := dumpValue(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		// Anything else goes through its JSON encoding and back.
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("cannot encode %T: %w", v, err)
		}
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		return dumpValue(buf, generic)
	}
	return nil
}

// dumpString writes s as an ASCII only JSON string literal.
func dumpString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r < 0x20 || r == utf8.RuneError || (r >= 0x7f && r <= 0xffff):
				fmt.Fprintf(buf, `\u%04x`, r)
			case r > 0xffff:
				r1, r2 := utf16.EncodeRune(r)
				fmt.Fprintf(buf, `\u%04x\u%04x`, r1, r2)
			default:
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}
