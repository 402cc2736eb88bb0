package chat

import "github.com/zhouzirui/shopally-web/backend/internal/model/product"

// Filters narrows a product search. Nil fields are sent as unset.
type Filters struct {
	PriceMaxETB *float64 `json:"priceMaxETB"`
	MinRating   *float64 `json:"minRating"`
}

// Session is the rendered view of one device's conversation state.
type Session struct {
	Messages  []Message         `json:"messages"`
	Basket    []product.Product `json:"basket"`
	Expanded  []string          `json:"expanded"`
	Detail    *product.Product  `json:"detail,omitempty"`
	Draft     string            `json:"draft"`
	Filters   Filters           `json:"filters"`
	Searching bool              `json:"searching"`
	Comparing bool              `json:"comparing"`
	// CanCompare mirrors the compare affordance: shown from two products up.
	CanCompare bool `json:"canCompare"`
}
