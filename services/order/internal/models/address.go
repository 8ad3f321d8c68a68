package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// AddressSnapshot is the address copied onto an order. Later edits to the
// user's saved address do not reach it.
type AddressSnapshot struct {
	Street     string   `json:"street"`
	City       string   `json:"city"`
	State      string   `json:"state"`
	PostalCode string   `json:"postal_code"`
	Country    string   `json:"country"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	Mobile     string   `json:"mobile"`
}

func (a AddressSnapshot) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *AddressSnapshot) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = AddressSnapshot{}
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("address snapshot: unsupported type %T", src)
	}
}

// Copy returns a snapshot that shares no pointers with a.
func (a AddressSnapshot) Copy() AddressSnapshot {
	out := a
	if a.Lat != nil {
		lat := *a.Lat
		out.Lat = &lat
	}
	if a.Lon != nil {
		lon := *a.Lon
		out.Lon = &lon
	}
	return out
}
