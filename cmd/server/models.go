package main

// API response models.

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// TenantsListResponse represents the response for listing tenants.
type TenantsListResponse struct {
	Tenants []string `json:"tenants"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
