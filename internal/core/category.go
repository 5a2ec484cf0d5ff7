package core

import "fmt"

const (
	Savings                 Category = "savings"
	Loan                    Category = "loan"
	SocialProtection        Category = "social_protection"
	Fund                    Category = "fund"
	ContributionCertificate Category = "contribution_certificate"
)

// Category identifies what a transaction pays into. The set is closed:
// parsing an unknown value is an error, never a silent default.
type Category string

var categoryLabels = map[Category]string{
	Savings:                 "Ahorro",
	Loan:                    "Préstamo",
	SocialProtection:        "Protección Social",
	Fund:                    "Fondo Especial",
	ContributionCertificate: "Certificado de Aportación",
}

// Receipt line items are always printed in this order, savings last.
var categoryOrder = map[Category]int{
	Loan:                    0,
	ContributionCertificate: 1,
	SocialProtection:        2,
	Fund:                    3,
	Savings:                 4,
}

// ParseCategory converts a stored category value back to a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if _, ok := categoryLabels[c]; !ok {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// Valid reports whether c is one of the five known categories.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the display name used on receipts and exports.
func (c Category) Label() string {
	return categoryLabels[c]
}

// SortOrder returns the receipt ordering rank for c. Unknown categories
// sort after all known ones.
func (c Category) SortOrder() int {
	if o, ok := categoryOrder[c]; ok {
		return o
	}
	return len(categoryOrder)
}

// Categories lists all categories in receipt order.
func Categories() []Category {
	return []Category{Loan, ContributionCertificate, SocialProtection, Fund, Savings}
}
