package model

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Agents report telemetry from many OS versions and collectors, and a field
// of the wrong type from one of them must not reject the whole heartbeat.
// The vector context and every dimension therefore decode field by field:
// a field that does not fit its Go type is left at its zero value.

// decodeLenient decodes a JSON object into the struct dst points to. Input
// that is not an object leaves dst zeroed.
func decodeLenient(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err == nil {
		return nil
	}

	v := reflect.ValueOf(dst).Elem()
	v.Set(reflect.Zero(v.Type()))

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		raw, ok := lookupField(fields, name)
		if !ok {
			continue
		}
		fv := v.Field(i)
		if err := json.Unmarshal(raw, fv.Addr().Interface()); err != nil {
			fv.Set(reflect.Zero(f.Type))
		}
	}
	return nil
}

// lookupField matches keys the way encoding/json does: exact first, then
// case-insensitive.
func lookupField(fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	if raw, ok := fields[name]; ok {
		return raw, true
	}
	for k, raw := range fields {
		if strings.EqualFold(k, name) {
			return raw, true
		}
	}
	return nil, false
}

func (v *VectorContext) UnmarshalJSON(b []byte) error {
	type plain VectorContext
	return decodeLenient(b, (*plain)(v))
}

func (d *NetworkDimension) UnmarshalJSON(b []byte) error {
	type plain NetworkDimension
	return decodeLenient(b, (*plain)(d))
}

func (d *IdentityDimension) UnmarshalJSON(b []byte) error {
	type plain IdentityDimension
	return decodeLenient(b, (*plain)(d))
}

func (d *BehaviorDimension) UnmarshalJSON(b []byte) error {
	type plain BehaviorDimension
	return decodeLenient(b, (*plain)(d))
}

func (d *TemporalDimension) UnmarshalJSON(b []byte) error {
	type plain TemporalDimension
	return decodeLenient(b, (*plain)(d))
}

func (d *ThreatIntelDimension) UnmarshalJSON(b []byte) error {
	type plain ThreatIntelDimension
	return decodeLenient(b, (*plain)(d))
}

func (s *VulnSeverity) UnmarshalJSON(b []byte) error {
	type plain VulnSeverity
	return decodeLenient(b, (*plain)(s))
}

func (d *VulnerabilityDimension) UnmarshalJSON(b []byte) error {
	type plain VulnerabilityDimension
	return decodeLenient(b, (*plain)(d))
}

func (d *CriticalityDimension) UnmarshalJSON(b []byte) error {
	type plain CriticalityDimension
	return decodeLenient(b, (*plain)(d))
}

func (d *ComplianceDimension) UnmarshalJSON(b []byte) error {
	type plain ComplianceDimension
	return decodeLenient(b, (*plain)(d))
}

func (d *GeoDimension) UnmarshalJSON(b []byte) error {
	type plain GeoDimension
	return decodeLenient(b, (*plain)(d))
}

func (d *TrafficDimension) UnmarshalJSON(b []byte) error {
	type plain TrafficDimension
	return decodeLenient(b, (*plain)(d))
}

func (d *ApplicationDimension) UnmarshalJSON(b []byte) error {
	type plain ApplicationDimension
	return decodeLenient(b, (*plain)(d))
}

func (d *PatchDimension) UnmarshalJSON(b []byte) error {
	type plain PatchDimension
	return decodeLenient(b, (*plain)(d))
}

func (d *PrivilegeDimension) UnmarshalJSON(b []byte) error {
	type plain PrivilegeDimension
	return decodeLenient(b, (*plain)(d))
}
