package types

import "strings"

// ShippingAddress is the delivery address snapshot stored on an order.
type ShippingAddress struct {
	FullName string `json:"full_name" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
	Province string `json:"province" validate:"required"`
	District string `json:"district" validate:"required"`
	Ward     string `json:"ward" validate:"required"`
	Street   string `json:"street" validate:"required"`
}

// Missing returns the json names of blank fields, in declaration order.
func (a ShippingAddress) Missing() []string {
	var missing []string
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check("full_name", a.FullName)
	check("phone", a.Phone)
	check("province", a.Province)
	check("district", a.District)
	check("ward", a.Ward)
	check("street", a.Street)
	return missing
}

// Normalize trims surrounding whitespace from every field.
func (a ShippingAddress) Normalize() ShippingAddress {
	return ShippingAddress{
		FullName: strings.TrimSpace(a.FullName),
		Phone:    strings.TrimSpace(a.Phone),
		Province: strings.TrimSpace(a.Province),
		District: strings.TrimSpace(a.District),
		Ward:     strings.TrimSpace(a.Ward),
		Street:   strings.TrimSpace(a.Street),
	}
}
