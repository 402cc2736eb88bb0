package product

// Synthesis holds the backend's comparison insight for one product.
type Synthesis struct {
	Pros        []string          `json:"pros"`
	Cons        []string          `json:"cons"`
	IsBestValue bool              `json:"isBestValue"`
	Features    map[string]string `json:"features"`
}

// Comparison pairs a compared product with its synthesis.
type Comparison struct {
	Product   Product   `json:"product"`
	Synthesis Synthesis `json:"synthesis"`
}

// Overall is the summary-level verdict across all compared products.
type Overall struct {
	BestValueProduct string   `json:"bestValueProduct"`
	BestValueLink    string   `json:"bestValueLink"`
	BestValuePrice   Price    `json:"bestValuePrice"`
	KeyHighlights    []string `json:"keyHighlights"`
	Summary          string   `json:"summary"`
}

// ComparisonResult is the data section of a compare response.
type ComparisonResult struct {
	Products          []Comparison `json:"products"`
	OverallComparison Overall      `json:"overallComparison"`
}
