package ldtest

import "strings"

// Capabilities is a list of optional features supported by the system under test.
type Capabilities []string

func (c Capabilities) Has(name string) bool {
	for _, value := range c {
		if value == name {
			return true
		}
	}
	return false
}

// Missing returns the names from all that are not in this list.
func (c Capabilities) Missing(all []string) []string {
	var ret []string
	for _, name := range all {
		if !c.Has(name) {
			ret = append(ret, name)
		}
	}
	return ret
}

func (c Capabilities) String() string {
	return strings.Join(c, ", ")
}
