package template

import (
	"maps"

	"choreo/internal/message"
)

// MergeContexts layers template data; keys of later maps shadow earlier ones.
// Nil maps are skipped and the inputs are never modified.
func MergeContexts(layers ...map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{})
	for _, layer := range layers {
		maps.Copy(merged, layer)
	}
	return merged
}

// MessageContext is what a responder template renders against: scenario
// variables at the top level, the received message under "request".
func MessageContext(req *message.Message, vars map[string]interface{}) map[string]interface{} {
	request := map[string]interface{}{}
	if req != nil {
		request = req.Fields()
	}
	return MergeContexts(vars, map[string]interface{}{"request": request})
}
