package models

// CategoryOther is the fallback category for unrecognized classifications
const CategoryOther = "Other"

// Categories fixed classification vocabulary, order is significant for callback data
var Categories = []string{
	"Personal",
	"Work",
	"Finance",
	"Bills",
	"Shopping",
	"Travel",
	"Security",
	"Social",
	"Newsletter",
	"Promo",
	"Updates",
	CategoryOther,
}

// ResolveCategory maps a classifier answer onto the vocabulary
func ResolveCategory(category string) string {
	for _, c := range Categories {
		if c == category {
			return c
		}
	}
	return CategoryOther
}

// CategoryIndex returns the index of a category or -1
func CategoryIndex(category string) int {
	for i, c := range Categories {
		if c == category {
			return i
		}
	}
	return -1
}
