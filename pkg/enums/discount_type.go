package enums

// DiscountType determines how a promotion's value is applied.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

var discountTypes = values[DiscountType]{"discount type", []DiscountType{
	DiscountTypePercentage,
	DiscountTypeFixed,
}}

func (d DiscountType) IsValid() bool { return discountTypes.has(d) }

func ParseDiscountType(value string) (DiscountType, error) { return discountTypes.parse(value) }
