package alert

import "time"

// Alert records a price-drop alert created for a device.
type Alert struct {
	ID        string    `json:"alertId"`
	DeviceID  string    `json:"deviceId"`
	ProductID string    `json:"productId"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
