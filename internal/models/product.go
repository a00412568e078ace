package models

// ProductRecord is the canonical result of a parse. It is the only value
// that outlives a parse call; everything upstream of the normalizer is
// transient, site-specific data.
type ProductRecord struct {
	Title           string            `json:"title"`
	Price           int               `json:"price"`
	OldPrice        int               `json:"old_price"`
	Description     string            `json:"description"`
	Category        string            `json:"category"`
	Characteristics map[string]string `json:"characteristics"`
	Composition     string            `json:"composition"`
	Images          []string          `json:"images"`
	InStock         bool              `json:"in_stock"`
}

// MinTitleLen is the shortest title accepted as real product data.
// Shorter strings are almost always markup noise or challenge-page text.
const MinTitleLen = 4

func NewProductRecord() *ProductRecord {
	return &ProductRecord{
		Characteristics: make(map[string]string),
		Images:          make([]string, 0),
		InStock:         true,
	}
}

// Validate reports what is missing from a record. A record with an empty
// title must never be returned to a caller.
func (p *ProductRecord) Validate() []string {
	var problems []string

	if len([]rune(p.Title)) < MinTitleLen {
		problems = append(problems, "title is missing or too short")
	}
	if p.Price < 0 {
		problems = append(problems, "price is negative")
	}

	return problems
}
