package restaurant

import (
	"encoding/json"
	"strings"

	"github.com/schilling3003/Perplexica/internal/models"
)

const (
	nameLabel    = "Restaurant Name:"
	addressLabel = "Address:"
)

// Record identifies the restaurant to evaluate.
type Record struct {
	RestaurantName string `json:"restaurantName"`
	Address        string `json:"address"`
}

type jsonQuery struct {
	RestaurantName string `json:"restaurantName"`
	SnakeName      string `json:"restaurant_name"`
	Address        string `json:"address"`
}

// ParseQuery accepts either a JSON object or labeled text:
//
//	{"restaurantName": "Chez Panisse", "address": "1517 Shattuck Ave"}
//	Restaurant Name: Chez Panisse Address: 1517 Shattuck Ave
func ParseQuery(query string) (Record, error) {
	var rec Record

	var q jsonQuery
	if err := json.Unmarshal([]byte(query), &q); err == nil {
		rec.RestaurantName = q.RestaurantName
		if rec.RestaurantName == "" {
			rec.RestaurantName = q.SnakeName
		}
		rec.Address = q.Address
	} else if strings.Contains(query, nameLabel) && strings.Contains(query, addressLabel) {
		_, rest, _ := strings.Cut(query, nameLabel)
		name, address, found := strings.Cut(rest, addressLabel)
		if !found {
			return Record{}, invalidQuery()
		}
		rec.RestaurantName = name
		rec.Address = address
	} else {
		return Record{}, invalidQuery()
	}

	return rec.normalize()
}

func (r Record) normalize() (Record, error) {
	r.RestaurantName = strings.TrimSpace(r.RestaurantName)
	r.Address = strings.TrimSpace(r.Address)
	if r.RestaurantName == "" || r.Address == "" {
		return Record{}, invalidQuery()
	}
	return r, nil
}

// Validate trims the record and rejects missing fields.
func (r Record) Validate() (Record, error) {
	return r.normalize()
}

// Query renders the record in labeled form, which ParseQuery accepts.
func (r Record) Query() string {
	return nameLabel + " " + r.RestaurantName + "\n" + addressLabel + " " + r.Address
}

func invalidQuery() error {
	return models.NewError(models.KindInvalidQueryFormat, "Invalid restaurant query format", nil)
}
