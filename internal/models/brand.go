package models

// Brand is a tenant record owned by the hosted database. It is only read here.
type Brand struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Industry string `json:"industry"`
	Location string `json:"location"`
	Website  string `json:"website"`
	Active   bool   `json:"is_active"`
}
