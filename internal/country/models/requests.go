package models

import (
	"strings"

	dErrors "countries/pkg/domain-errors"
)

const (
	msgSubmitFieldsRequired = "all fields (country, capital, population) are required"
	msgUpdateFieldsRequired = "all fields (newCountry, capital, population) are required"
	msgInvalidPopulation    = "population must be a valid positive number"
)

// SubmitRequest is the body of POST /submit.
type SubmitRequest struct {
	Country    string          `json:"country"`
	Capital    string          `json:"capital"`
	Population PopulationInput `json:"population"`

	parsedPopulation int64
}

// Normalize trims surrounding whitespace so blank strings count as missing.
func (r *SubmitRequest) Normalize() {
	r.Country = strings.TrimSpace(r.Country)
	r.Capital = strings.TrimSpace(r.Capital)
}

// Validate checks presence of every field and a positive population.
func (r *SubmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Normalize()
	if r.Country == "" || r.Capital == "" || r.Population.Missing() {
		return dErrors.New(dErrors.CodeValidation, msgSubmitFieldsRequired)
	}
	population, ok := r.Population.Parse()
	if !ok {
		return dErrors.New(dErrors.CodeValidation, msgInvalidPopulation)
	}
	r.parsedPopulation = population
	return nil
}

// ToCountry returns the record described by a validated request.
func (r *SubmitRequest) ToCountry() Country {
	return Country{Country: r.Country, Capital: r.Capital, Population: r.parsedPopulation}
}

// UpdateRequest is the body of PUT /countries/{country}.
type UpdateRequest struct {
	NewCountry string          `json:"newCountry"`
	Capital    string          `json:"capital"`
	Population PopulationInput `json:"population"`

	parsedPopulation int64
}

func (r *UpdateRequest) Normalize() {
	r.NewCountry = strings.TrimSpace(r.NewCountry)
	r.Capital = strings.TrimSpace(r.Capital)
}

func (r *UpdateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Normalize()
	if r.NewCountry == "" || r.Capital == "" || r.Population.Missing() {
		return dErrors.New(dErrors.CodeValidation, msgUpdateFieldsRequired)
	}
	population, ok := r.Population.Parse()
	if !ok {
		return dErrors.New(dErrors.CodeValidation, msgInvalidPopulation)
	}
	r.parsedPopulation = population
	return nil
}

// ToCountry returns the record as it should look after the update.
func (r *UpdateRequest) ToCountry() Country {
	return Country{Country: r.NewCountry, Capital: r.Capital, Population: r.parsedPopulation}
}

// Renamed reports whether applying the request to the row stored under current moves it to a new key.
func (r *UpdateRequest) Renamed(current string) bool {
	return r.NewCountry != current
}
