package reference

import "sort"

// EnumDirectory is one enum catalog file.
type EnumDirectory struct {
	Name  string     `yaml:"name"`
	Items []EnumItem `yaml:"items"`
}

// EnumItem is one code/name pair. ValidFrom/ValidTo are dates
// (2006-01-02); empty bounds are open.
type EnumItem struct {
	Code      string `yaml:"code"`
	Name      string `yaml:"name"`
	Order     int    `yaml:"order,omitempty"`
	ValidFrom string `yaml:"valid_from,omitempty"`
	ValidTo   string `yaml:"valid_to,omitempty"`
}

// Sorted returns the items ordered by Order, then Code.
func (d EnumDirectory) Sorted() []EnumItem {
	out := append([]EnumItem(nil), d.Items...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Code < out[j].Code
	})
	return out
}
