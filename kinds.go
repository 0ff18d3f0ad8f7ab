package param

import (
	"fmt"
	"reflect"
)

// Kind identifies the typed-value-with-validator family a Parameter belongs
// to. Concrete kinds share the generic slot machinery and differ only in
// their slot defaults and validation.
type Kind string

const (
	KindParameter Kind = "Parameter"
	KindNumber    Kind = "Number"
	KindInteger   Kind = "Integer"
	KindString    Kind = "String"
	KindBoolean   Kind = "Boolean"
	KindList      Kind = "List"
	KindDict      Kind = "Dict"
	KindSelector  Kind = "Selector"
	KindTrigger   Kind = "Trigger"
)

// Metadata slot names. A slot left unset on a declaration is distinct from
// one explicitly set to a zero or nil value; unset slots inherit from
// ancestor declarations and finally from the kind defaults below.
const (
	SlotDefault         = "default"
	SlotDoc             = "doc"
	SlotLabel           = "label"
	SlotAllowNone       = "allow_none"
	SlotConstant        = "constant"
	SlotReadOnly        = "readonly"
	SlotInstantiate     = "instantiate"
	SlotAllowRefs       = "allow_refs"
	SlotPrecedence      = "precedence"
	SlotBounds          = "bounds"
	SlotInclusiveBounds = "inclusive_bounds"
	SlotSoftBounds      = "softbounds"
	SlotStep            = "step"
	SlotRegex           = "regex"
	SlotObjects         = "objects"
	SlotRule            = "rule"
)

// boundsSpec holds one optional bound per end; nil means unbounded.
type boundsSpec [2]*float64

// inclusiveSpec marks each bound end inclusive (true) or exclusive.
type inclusiveSpec [2]bool

type kindInfo struct {
	name   Kind
	parent Kind
	// slotDefaults supplies values for slots never set anywhere in the
	// declaration hierarchy.
	slotDefaults map[string]any
	validate     func(p *Parameter, val any) error
}

// kindRegistry is populated in init: the validators reach back into the
// registry through SlotOrDefault, so a literal initializer would cycle.
var kindRegistry = make(map[Kind]*kindInfo)

func registerKind(info *kindInfo) {
	kindRegistry[info.name] = info
}

func init() {
	registerKind(&kindInfo{
		name:         KindParameter,
		slotDefaults: genericSlotDefaults(nil),
		validate:     func(p *Parameter, val any) error { return nil },
	})
	registerKind(&kindInfo{
		name:         KindNumber,
		parent:       KindParameter,
		slotDefaults: genericSlotDefaults(map[string]any{SlotDefault: 0.0}),
		validate:     validateNumber,
	})
	registerKind(&kindInfo{
		name:         KindInteger,
		parent:       KindNumber,
		slotDefaults: genericSlotDefaults(map[string]any{SlotDefault: 0}),
		validate:     validateInteger,
	})
	registerKind(&kindInfo{
		name:         KindString,
		parent:       KindParameter,
		slotDefaults: genericSlotDefaults(map[string]any{SlotDefault: ""}),
		validate:     validateString,
	})
	registerKind(&kindInfo{
		name:         KindBoolean,
		parent:       KindParameter,
		slotDefaults: genericSlotDefaults(map[string]any{SlotDefault: false}),
		validate:     validateBoolean,
	})
	registerKind(&kindInfo{
		name:         KindList,
		parent:       KindParameter,
		slotDefaults: genericSlotDefaults(map[string]any{SlotDefault: []any{}, SlotInstantiate: true}),
		validate:     validateList,
	})
	registerKind(&kindInfo{
		name:         KindDict,
		parent:       KindParameter,
		slotDefaults: genericSlotDefaults(map[string]any{SlotDefault: map[string]any{}, SlotInstantiate: true}),
		validate:     validateDict,
	})
	registerKind(&kindInfo{
		name:         KindSelector,
		parent:       KindParameter,
		slotDefaults: genericSlotDefaults(map[string]any{SlotObjects: []any{}}),
		validate:     validateSelector,
	})
	registerKind(&kindInfo{
		name:         KindTrigger,
		parent:       KindBoolean,
		slotDefaults: genericSlotDefaults(map[string]any{SlotDefault: false}),
		validate:     validateBoolean,
	})
}

func genericSlotDefaults(overrides map[string]any) map[string]any {
	defaults := map[string]any{
		SlotDefault:         nil,
		SlotDoc:             "",
		SlotLabel:           "",
		SlotAllowNone:       false,
		SlotConstant:        false,
		SlotReadOnly:        false,
		SlotInstantiate:     false,
		SlotAllowRefs:       false,
		SlotPrecedence:      0.0,
		SlotBounds:          boundsSpec{},
		SlotInclusiveBounds: inclusiveSpec{true, true},
		SlotSoftBounds:      boundsSpec{},
		SlotStep:            nil,
		SlotRegex:           "",
		SlotObjects:         []any(nil),
		SlotRule:            "",
	}
	for k, v := range overrides {
		defaults[k] = v
	}
	return defaults
}

// kindNarrows reports whether sub is the same kind as base or a descendant
// of it in the kind hierarchy.
func kindNarrows(sub, base Kind) bool {
	for k := sub; k != ""; {
		if k == base {
			return true
		}
		info, ok := kindRegistry[k]
		if !ok {
			return false
		}
		k = info.parent
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func isInteger(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func (p *Parameter) validationError(constraint, format string, args ...any) error {
	return &ValidationError{
		Class:      p.ownerName(),
		Attribute:  p.name,
		Constraint: constraint,
		Message:    fmt.Sprintf(format, args...),
	}
}

// checkBounds enforces the configured hard bounds; each end is inclusive or
// exclusive independently.
func checkBounds(p *Parameter, val float64, quantity string) error {
	bounds, _ := p.SlotOrDefault(SlotBounds).(boundsSpec)
	inclusive, _ := p.SlotOrDefault(SlotInclusiveBounds).(inclusiveSpec)

	if upper := bounds[1]; upper != nil {
		if inclusive[1] {
			if !(val <= *upper) {
				return p.validationError("bounds", "%s must be at most %v, not %v", quantity, *upper, val)
			}
		} else if !(val < *upper) {
			return p.validationError("bounds", "%s must be less than %v, not %v", quantity, *upper, val)
		}
	}
	if lower := bounds[0]; lower != nil {
		if inclusive[0] {
			if !(val >= *lower) {
				return p.validationError("bounds", "%s must be at least %v, not %v", quantity, *lower, val)
			}
		} else if !(val > *lower) {
			return p.validationError("bounds", "%s must be greater than %v, not %v", quantity, *lower, val)
		}
	}
	return nil
}

func validateNumber(p *Parameter, val any) error {
	f, ok := toFloat(val)
	if !ok {
		return p.validationError("type", "expected a numeric value, got %T", val)
	}
	return checkBounds(p, f, "value")
}

func validateInteger(p *Parameter, val any) error {
	if !isInteger(val) {
		return p.validationError("type", "expected an integer value, got %T", val)
	}
	f, _ := toFloat(val)
	return checkBounds(p, f, "value")
}

func validateString(p *Parameter, val any) error {
	s, ok := val.(string)
	if !ok {
		return p.validationError("type", "expected a string value, got %T", val)
	}
	if re := p.compiledRegex(); re != nil && !re.MatchString(s) {
		return p.validationError("regex", "value %q does not match pattern %q", s, re.String())
	}
	return nil
}

func validateBoolean(p *Parameter, val any) error {
	if _, ok := val.(bool); !ok {
		return p.validationError("type", "expected a boolean value, got %T", val)
	}
	return nil
}

func validateList(p *Parameter, val any) error {
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return p.validationError("type", "expected a list value, got %T", val)
	}
	return checkBounds(p, float64(rv.Len()), "length")
}

func validateDict(p *Parameter, val any) error {
	if reflect.ValueOf(val).Kind() != reflect.Map {
		return p.validationError("type", "expected a map value, got %T", val)
	}
	return nil
}

func validateSelector(p *Parameter, val any) error {
	objects, _ := p.SlotOrDefault(SlotObjects).([]any)
	if len(objects) == 0 {
		return nil
	}
	for _, obj := range objects {
		if valuesEqual(obj, val) {
			return nil
		}
	}
	return p.validationError("membership", "value %v is not among the allowed objects %v", val, objects)
}
