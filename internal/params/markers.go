package params

import (
	"regexp"
)

// RuntimeValue stands for a value supplied when a workflow runs.
type RuntimeValue struct{}

// ConnectedValue stands for a value supplied by a connected workflow step.
type ConnectedValue struct{}

const (
	classKey            = "__class__"
	runtimeClass        = "RuntimeValue"
	connectedClass      = "ConnectedValue"
	unvalidatedClass    = "UnvalidatedValue"
	indexKey            = "__index__"
	currentCaseKey      = "__current_case__"
	collectionReducePfx = "__collection_reduce__|"
)

// IsRuntimeValue reports whether value is a runtime or connected marker, in
// object or dict form.
func IsRuntimeValue(value interface{}) bool {
	switch t := value.(type) {
	case RuntimeValue, *RuntimeValue, ConnectedValue, *ConnectedValue:
		return true
	case map[string]interface{}:
		c, _ := t[classKey].(string)
		return c == runtimeClass || c == connectedClass
	}
	return false
}

// RuntimeToJSON returns the dict form of a runtime marker.
func RuntimeToJSON(value interface{}) map[string]interface{} {
	switch t := value.(type) {
	case ConnectedValue, *ConnectedValue:
		return map[string]interface{}{classKey: connectedClass}
	case map[string]interface{}:
		if c, _ := t[classKey].(string); c == connectedClass {
			return map[string]interface{}{classKey: connectedClass}
		}
	}
	return map[string]interface{}{classKey: runtimeClass}
}

// RuntimeToObject returns the marker object for a dict form.
func RuntimeToObject(value interface{}) interface{} {
	if m, ok := value.(map[string]interface{}); ok {
		if c, _ := m[classKey].(string); c == connectedClass {
			return ConnectedValue{}
		}
	}
	switch value.(type) {
	case ConnectedValue, *ConnectedValue:
		return ConnectedValue{}
	}
	return RuntimeValue{}
}

// IsUnvalidatedValue reports whether value is an UnvalidatedValue dict.
func IsUnvalidatedValue(value interface{}) bool {
	m, ok := value.(map[string]interface{})
	if !ok {
		return false
	}
	c, _ := m[classKey].(string)
	return c == unvalidatedClass
}

var (
	workflowParamFull   = regexp.MustCompile(`^\$\{.+?\}$`)
	workflowParamSearch = regexp.MustCompile(`\$\{.+?\}`)
)

// ContainsWorkflowParameter reports whether value is a ${name} placeholder.
// With search set any embedded placeholder counts.
func ContainsWorkflowParameter(value interface{}, search bool) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	if search {
		return workflowParamSearch.MatchString(s)
	}
	return workflowParamFull.MatchString(s)
}

// keepForWorkflow reports whether FromJSON returns value unchanged: while a
// workflow is being built, runtime markers and ${name} placeholders are
// resolved later.
func keepForWorkflow(trans *Trans, value interface{}) bool {
	return trans.workflowMode() && (IsRuntimeValue(value) || ContainsWorkflowParameter(value, false))
}
