// Package inquiry implements the structured "missing parameters" protocol
// between the agent and the client. An inquiry is an assistant message whose
// content is a JSON object naming the parameters a tool still needs; the
// client collects values and answers with an EXECUTE command whose positional
// values follow the inquiry's parameter declaration order.
package inquiry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Param types an inquiry may request.
const (
	TypeBoolean = "boolean"
	TypeNumber  = "number"
	TypeString  = "string"
)

// Param is one requested parameter.
type Param struct {
	Name string
	Type string
}

// Inquiry is the decoded form of an inquiry message. Params preserves the
// declaration order of the JSON object, which defines the positional order
// of the values in the answering EXECUTE command.
type Inquiry struct {
	Content string
	Params  []Param
	Input   bool
}

func validParamType(t string) bool {
	return t == TypeBoolean || t == TypeNumber || t == TypeString
}

// Parse reports whether content is a well-formed inquiry message and decodes
// it if so. The shape check is strict: a JSON object with a string "content",
// a "params" object mapping names to primitive type names, and optionally a
// boolean "input". Anything else is a plain answer.
func Parse(content string) (*Inquiry, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, false
	}

	inq := &Inquiry{}
	var sawContent, sawParams bool
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, false
		}
		switch key {
		case "content":
			v, err := dec.Token()
			if err != nil {
				return nil, false
			}
			s, ok := v.(string)
			if !ok {
				return nil, false
			}
			inq.Content = s
			sawContent = true
		case "params":
			params, ok := decodeParams(dec)
			if !ok {
				return nil, false
			}
			inq.Params = params
			sawParams = true
		case "input":
			v, err := dec.Token()
			if err != nil {
				return nil, false
			}
			b, ok := v.(bool)
			if !ok {
				return nil, false
			}
			inq.Input = b
		default:
			return nil, false
		}
	}
	if _, err := dec.Token(); err != nil { // closing brace
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	if !sawContent || !sawParams {
		return nil, false
	}
	return inq, true
}

// decodeParams reads the params object token by token, keeping key order.
func decodeParams(dec *json.Decoder) ([]Param, bool) {
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, false
	}
	params := []Param{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		name, ok := keyTok.(string)
		if !ok {
			return nil, false
		}
		valTok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		typ, ok := valTok.(string)
		if !ok || !validParamType(typ) {
			return nil, false
		}
		params = append(params, Param{Name: name, Type: typ})
	}
	if _, err := dec.Token(); err != nil {
		return nil, false
	}
	return params, true
}

// Command is a parsed EXECUTE instruction: a direct tool invocation that
// bypasses model tool selection. Values are positional and must match the
// originating inquiry's parameter declaration order.
type Command struct {
	Tool   string
	Values []any
}

// commandPrefix is matched at the text layer, not the schema layer.
const commandPrefix = "EXECUTE"

// IsCommand reports whether a user turn is an EXECUTE instruction.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), commandPrefix)
}

// BuildCommand renders the exact wire form "EXECUTE <tool> {params:[v1,v2,...]}".
func BuildCommand(tool string, values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatValue(v)
	}
	return fmt.Sprintf("%s %s {params:[%s]}", commandPrefix, tool, strings.Join(parts, ","))
}

func formatValue(v any) string {
	switch t := v.(type) {
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(v)
	}
}

// ParseCommand parses an EXECUTE instruction. Values are decoded as boolean,
// number or raw string literals, in order.
func ParseCommand(text string) (*Command, error) {
	rest := strings.TrimSpace(text)
	if !strings.HasPrefix(rest, commandPrefix) {
		return nil, fmt.Errorf("not an %s command", commandPrefix)
	}
	rest = strings.TrimSpace(rest[len(commandPrefix):])

	open := strings.Index(rest, "{params:[")
	if open < 0 {
		return nil, fmt.Errorf("missing {params:[...]} list")
	}
	tool := strings.TrimSpace(rest[:open])
	if tool == "" {
		return nil, fmt.Errorf("missing tool name")
	}

	list := rest[open+len("{params:["):]
	end := strings.LastIndex(list, "]}")
	if end < 0 {
		return nil, fmt.Errorf("unterminated params list")
	}
	list = list[:end]

	cmd := &Command{Tool: tool}
	if strings.TrimSpace(list) == "" {
		return cmd, nil
	}
	for _, raw := range strings.Split(list, ",") {
		cmd.Values = append(cmd.Values, parseValue(strings.TrimSpace(raw)))
	}
	return cmd, nil
}

func parseValue(raw string) any {
	if raw == "true" {
		return true
	}
	if raw == "false" {
		return false
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return strings.Trim(raw, `"`)
}
