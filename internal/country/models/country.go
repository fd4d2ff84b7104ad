package models

// Country is the single record type, keyed by its name.
type Country struct {
	Country    string `json:"country"`
	Capital    string `json:"capital"`
	Population int64  `json:"population"`
}

