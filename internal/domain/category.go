package domain

// Category is a node of the catalog category forest. Level is informational
// and may be stale; closure is computed from ParentID edges only.
type Category struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Slug     string  `json:"slug"`
	ParentID *string `json:"parent_id,omitempty"`
	Level    int     `json:"level"`
	IsActive bool    `json:"is_active"`
}

// IsRoot reports whether the category has no parent.
func (c *Category) IsRoot() bool {
	return c.ParentID == nil || *c.ParentID == ""
}
