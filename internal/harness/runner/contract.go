package runner

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// ContractViolation is the outcome of a failed JSON contract check: a
// closed failure type (bad_json | quality_fail) plus a human-readable
// reason string that becomes a RunRecord.Reasons entry.
type ContractViolation struct {
	FailureType string
	Reason      string
}

// valueKind is a JSON value's shape for the contract's type-compatibility
// rule: numbers (int/float) interchange, but bool never interchanges
// with a 0/1 number, and everything else must match by kind.
type valueKind int

const (
	kindString valueKind = iota
	kindNumber
	kindBool
	kindArray
	kindObject
	kindNull
)

func kindOf(r gjson.Result) valueKind {
	switch r.Type {
	case gjson.String:
		return kindString
	case gjson.Number:
		return kindNumber
	case gjson.True, gjson.False:
		return kindBool
	case gjson.Null:
		return kindNull
	default: // gjson.JSON — object or array
		if r.IsArray() {
			return kindArray
		}
		return kindObject
	}
}

func (k valueKind) String() string {
	switch k {
	case kindString:
		return "str"
	case kindNumber:
		return "number"
	case kindBool:
		return "bool"
	case kindArray:
		return "list"
	case kindObject:
		return "dict"
	default:
		return "NoneType"
	}
}

// ValidateContract checks the JSON contract an S1 exemplar defines:
// every top-level key of expectedJSON must be present in actual with a
// compatible value kind. gjson classifies each raw value's kind
// without requiring a declared Go struct per test case; the contract
// only cares about "what shape is this value", not its full schema.
func ValidateContract(expectedJSON string, actual map[string]any) *ContractViolation {
	var expected map[string]json.RawMessage
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return &ContractViolation{FailureType: "bad_json", Reason: "Expected output is not valid JSON: " + err.Error()}
	}

	actualBytes, err := json.Marshal(actual)
	if err != nil || !gjson.ValidBytes(actualBytes) {
		return &ContractViolation{FailureType: "bad_json", Reason: "Actual output is not valid JSON"}
	}
	var actualRaw map[string]json.RawMessage
	if err := json.Unmarshal(actualBytes, &actualRaw); err != nil {
		return &ContractViolation{FailureType: "bad_json", Reason: "Actual output is not valid JSON: " + err.Error()}
	}

	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var missing []string
	var mismatches []string
	for _, k := range keys {
		actRaw, ok := actualRaw[k]
		if !ok {
			missing = append(missing, k)
			continue
		}
		expKind := kindOf(gjson.ParseBytes(expected[k]))
		actKind := kindOf(gjson.ParseBytes(actRaw))
		if expKind != actKind {
			mismatches = append(mismatches, fmt.Sprintf("%s: expected %s, got %s", k, expKind, actKind))
		}
	}

	if len(missing) > 0 {
		return &ContractViolation{FailureType: "quality_fail", Reason: "Missing required keys: " + strings.Join(missing, ", ")}
	}
	if len(mismatches) > 0 {
		return &ContractViolation{FailureType: "quality_fail", Reason: "Type mismatches: " + strings.Join(mismatches, "; ")}
	}
	return nil
}

// contractKeysDescription renders "key (kind), key (kind), ..." for
// the system instruction injected ahead of S1 calls.
func contractKeysDescription(expectedJSON string) string {
	var expected map[string]json.RawMessage
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return ""
	}
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s (%s)", k, kindOf(gjson.ParseBytes(expected[k]))))
	}
	return strings.Join(parts, ", ")
}

// deriveSchema builds the Gateway schema argument from the keys and
// value kinds of an S1 exemplar, so the Gateway can enable JSON mode.
func deriveSchema(expectedJSON string) map[string]any {
	var expected map[string]json.RawMessage
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return nil
	}
	props := make(map[string]any, len(expected))
	for k, raw := range expected {
		props[k] = schemaTypeName(kindOf(gjson.ParseBytes(raw)))
	}
	return map[string]any{"properties": props}
}

func schemaTypeName(k valueKind) string {
	switch k {
	case kindNumber:
		return "number"
	case kindBool:
		return "boolean"
	case kindArray:
		return "array"
	case kindObject:
		return "object"
	default:
		return "string"
	}
}
