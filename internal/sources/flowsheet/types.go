package flowsheet

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Element sources inside a packed flowsheet observation.
const (
	SourceMeasuredValue = "ip_flwsht_meas.meas_value"
	SourceGroupDisplay  = "ip_flo_gp_data.disp_name"
	SourceGroupUnits    = "ip_flo_gp_data.units"
	SourceTemplateName  = "ip_flt_data.display_name"
)

// Packed is the JSON document stored in value_as_string and
// observation_source_value of a flowsheet observation.
type Packed struct {
	Values []Element `json:"values"`
}

// Element is one tagged scalar of a packed document.
type Element struct {
	Source string      `json:"source"`
	Value  interface{} `json:"value"`
}

// decodePacked parses doc; malformed documents yield an empty Packed.
func decodePacked(doc *string) Packed {
	var p Packed
	if doc == nil || *doc == "" {
		return p
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(*doc)))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return Packed{}
	}
	return p
}

// Lookup returns the value of the first element tagged source.
func (p Packed) Lookup(source string) (string, bool) {
	for _, e := range p.Values {
		if e.Source != source {
			continue
		}
		switch v := e.Value.(type) {
		case string:
			return v, true
		case json.Number:
			return v.String(), true
		case bool:
			return strconv.FormatBool(v), true
		}
		return "", false
	}
	return "", false
}
