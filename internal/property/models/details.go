package models

import (
	"time"

	"github.com/shopspring/decimal"

	dErrors "rotrust/pkg/domain-errors"
)

// Type classifies a property.
type Type string

const (
	TypeApartment  Type = "apartment"
	TypeHouse      Type = "house"
	TypeLand       Type = "land"
	TypeCommercial Type = "commercial"
	TypeIndustrial Type = "industrial"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeApartment, TypeHouse, TypeLand, TypeCommercial, TypeIndustrial:
		return true
	}
	return false
}

var energyClasses = map[string]struct{}{
	"A+": {}, "A": {}, "B": {}, "C": {}, "D": {}, "E": {}, "F": {}, "G": {},
}

const (
	minBuildingYear   = 1800
	maxDescriptionLen = 2000
	maxRegistryRefLen = 64
)

// Details are the registry attributes of a property.
type Details struct {
	Type              Type            `json:"type"`
	SizeSqm           decimal.Decimal `json:"size_sqm"`
	Rooms             *int            `json:"rooms,omitempty"`
	Floor             *int            `json:"floor,omitempty"`
	BuildingYear      *int            `json:"building_year,omitempty"`
	CadastralNumber   string          `json:"cadastral_number,omitempty"`
	LandBookNumber    string          `json:"land_book_number,omitempty"`
	EnergyCertificate string          `json:"energy_certificate,omitempty"`
	Description       string          `json:"description,omitempty"`
}

// Validate checks the attribute ranges. now bounds the building year.
func (d Details) Validate(now time.Time) error {
	if !d.Type.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown property type %q", d.Type)
	}
	if !d.SizeSqm.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "size must be positive")
	}
	if d.Rooms != nil && *d.Rooms < 0 {
		return dErrors.New(dErrors.CodeValidation, "rooms cannot be negative")
	}
	if d.Rooms != nil && d.Type == TypeLand && *d.Rooms > 0 {
		return dErrors.New(dErrors.CodeValidation, "land cannot have rooms")
	}
	if d.Floor != nil && (*d.Floor < -5 || *d.Floor > 200) {
		return dErrors.New(dErrors.CodeValidation, "floor out of range")
	}
	if d.BuildingYear != nil && (*d.BuildingYear < minBuildingYear || *d.BuildingYear > now.Year()+5) {
		return dErrors.New(dErrors.CodeValidation, "building year out of range")
	}
	if d.EnergyCertificate != "" {
		if _, ok := energyClasses[d.EnergyCertificate]; !ok {
			return dErrors.Newf(dErrors.CodeValidation, "unknown energy class %q", d.EnergyCertificate)
		}
	}
	if len(d.CadastralNumber) > maxRegistryRefLen || len(d.LandBookNumber) > maxRegistryRefLen {
		return dErrors.New(dErrors.CodeValidation, "registry reference too long")
	}
	if len(d.Description) > maxDescriptionLen {
		return dErrors.New(dErrors.CodeValidation, "description too long")
	}
	return nil
}

// DetailsPatch carries the fields of a partial update. Nil fields are left
// unchanged.
type DetailsPatch struct {
	Type              *Type            `json:"type,omitempty"`
	SizeSqm           *decimal.Decimal `json:"size_sqm,omitempty"`
	Rooms             *int             `json:"rooms,omitempty"`
	Floor             *int             `json:"floor,omitempty"`
	BuildingYear      *int             `json:"building_year,omitempty"`
	CadastralNumber   *string          `json:"cadastral_number,omitempty"`
	LandBookNumber    *string          `json:"land_book_number,omitempty"`
	EnergyCertificate *string          `json:"energy_certificate,omitempty"`
	Description       *string          `json:"description,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p DetailsPatch) IsEmpty() bool {
	return p == DetailsPatch{}
}

// Merge returns d with every non-nil patch field applied.
func (d Details) Merge(p DetailsPatch) Details {
	if p.Type != nil {
		d.Type = *p.Type
	}
	if p.SizeSqm != nil {
		d.SizeSqm = *p.SizeSqm
	}
	if p.Rooms != nil {
		d.Rooms = p.Rooms
	}
	if p.Floor != nil {
		d.Floor = p.Floor
	}
	if p.BuildingYear != nil {
		d.BuildingYear = p.BuildingYear
	}
	if p.CadastralNumber != nil {
		d.CadastralNumber = *p.CadastralNumber
	}
	if p.LandBookNumber != nil {
		d.LandBookNumber = *p.LandBookNumber
	}
	if p.EnergyCertificate != nil {
		d.EnergyCertificate = *p.EnergyCertificate
	}
	if p.Description != nil {
		d.Description = *p.Description
	}
	return d
}
