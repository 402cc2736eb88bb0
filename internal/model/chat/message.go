package chat

import (
	"time"

	"github.com/zhouzirui/shopally-web/backend/internal/model/product"
)

// Role tells presenters how to render a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the transcript. Only assistant turns carry products.
type Message struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Text      string            `json:"text"`
	Products  []product.Product `json:"products,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}
