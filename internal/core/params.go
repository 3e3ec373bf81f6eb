package core

import (
	"fmt"
	"io"
	"strconv"
)

// ParamType enumerates supported parameter value kinds.
type ParamType string

const (
	// ParamTypeInt denotes integer-valued parameters.
	ParamTypeInt ParamType = "int"
	// ParamTypeFloat denotes floating-point parameters.
	ParamTypeFloat ParamType = "float"
	// ParamTypeBool denotes boolean parameters.
	ParamTypeBool ParamType = "bool"
	// ParamTypeString denotes free-form parameters.
	ParamTypeString ParamType = "string"
)

// Parameter describes a single run setting.
type Parameter struct {
	Key   string
	Label string
	Type  ParamType
	Value string
}

// ParameterGroup clusters related parameters for presentation purposes.
type ParameterGroup struct {
	Name   string
	Params []Parameter
}

// ParameterSnapshot captures the fixed settings of a run.
type ParameterSnapshot struct {
	Groups []ParameterGroup
}

// Lookup returns the parameter with the given key.
func (s ParameterSnapshot) Lookup(key string) (Parameter, bool) {
	for _, g := range s.Groups {
		for _, p := range g.Params {
			if p.Key == key {
				return p, true
			}
		}
	}
	return Parameter{}, false
}

// WriteTo prints the snapshot grouped by section.
func (s ParameterSnapshot) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, g := range s.Groups {
		n, err := fmt.Fprintf(w, "[%s]\n", g.Name)
		total += int64(n)
		if err != nil {
			return total, err
		}
		for _, p := range g.Params {
			n, err = fmt.Fprintf(w, "  %-18s %-8s %s\n", p.Key, p.Type, p.Value)
			total += int64(n)
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// IntParam builds an integer parameter.
func IntParam(key, label string, value int) Parameter {
	return Parameter{Key: key, Label: label, Type: ParamTypeInt, Value: strconv.Itoa(value)}
}

// Int64Param builds an integer parameter from an int64.
func Int64Param(key, label string, value int64) Parameter {
	return Parameter{Key: key, Label: label, Type: ParamTypeInt, Value: strconv.FormatInt(value, 10)}
}

// FloatParam builds a floating-point parameter.
func FloatParam(key, label string, value float64) Parameter {
	return Parameter{Key: key, Label: label, Type: ParamTypeFloat, Value: strconv.FormatFloat(value, 'f', -1, 64)}
}

// BoolParam builds a boolean parameter.
func BoolParam(key, label string, value bool) Parameter {
	return Parameter{Key: key, Label: label, Type: ParamTypeBool, Value: strconv.FormatBool(value)}
}

// StringParam builds a free-form parameter.
func StringParam(key, label, value string) Parameter {
	return Parameter{Key: key, Label: label, Type: ParamTypeString, Value: value}
}
