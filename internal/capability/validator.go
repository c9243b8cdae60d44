package capability

import (
	"github.com/flemzord/streamexec/pkg/segment"
)

// Validator checks completed invocation segments against the registry.
// It is pure: no filesystem, no network, no side effects.
type Validator struct {
	reg *Registry
}

// NewValidator creates a validator backed by the given registry.
func NewValidator(reg *Registry) *Validator {
	return &Validator{reg: reg}
}

// Validate turns a completed invocation segment into a ValidatedCall, or a
// *ParamError describing the first failure. Unknown extra parameters pass
// through unchanged for forward compatibility.
func (v *Validator) Validate(seg *segment.Segment, callID int64) (ValidatedCall, error) {
	desc, err := v.reg.Lookup(seg.Name)
	if err != nil {
		return ValidatedCall{}, &ParamError{CallName: seg.Name, Kind: UnknownCapability}
	}

	params := seg.ParamMap()

	for _, req := range desc.Required {
		if val, ok := params[req]; !ok || val == "" {
			return ValidatedCall{}, &ParamError{
				CallName: seg.Name,
				Param:    req,
				Kind:     ParamMissing,
			}
		}
	}

	if sch := v.reg.schema(seg.Name); sch != nil {
		// The schema sees the parameter map as a JSON object of strings.
		doc := make(map[string]any, len(params))
		for k, val := range params {
			doc[k] = val
		}
		if err := sch.Validate(doc); err != nil {
			return ValidatedCall{}, &ParamError{
				CallName: seg.Name,
				Param:    firstSchemaParam(params, desc),
				Kind:     ParamInvalid,
				Detail:   err.Error(),
			}
		}
	}

	return ValidatedCall{
		Name:    desc.Name,
		CallID:  callID,
		Ordered: seg.Params(),
		Params:  params,
	}, nil
}

// firstSchemaParam picks a parameter name to attribute a schema failure to.
// Schema errors do not always point at a single property; attribute to the
// first declared required parameter present, falling back to the call name.
func firstSchemaParam(params map[string]string, desc Descriptor) string {
	for _, req := range desc.Required {
		if _, ok := params[req]; ok {
			return req
		}
	}
	return ""
}
