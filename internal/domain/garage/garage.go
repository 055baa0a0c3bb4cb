package garage

import (
	"time"

	"github.com/geocoder89/garagehub/internal/domain/user"
)

// PublicGarage is the redacted view of an approved garage: no payment status,
// no customer ref, no subscription expiry, no license document, and only
// active services.
type PublicGarage struct {
	ID          string         `json:"id"`
	GarageName  string         `json:"garageName"`
	OwnerName   string         `json:"ownerName"`
	Address     string         `json:"address"`
	City        string         `json:"city,omitempty"`
	HourlyRate  float64        `json:"hourlyRate"`
	Capacity    int            `json:"capacity"`
	Description string         `json:"description,omitempty"`
	Services    []user.Service `json:"services"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// PublicView builds the redacted listing entry for an approved garage owner.
func PublicView(u user.User) PublicGarage {
	g := PublicGarage{
		ID:        u.ID,
		OwnerName: u.Name,
		CreatedAt: u.CreatedAt,
	}

	if p := u.GarageProfile; p != nil {
		g.GarageName = p.GarageName
		g.Address = p.Address
		g.City = p.City
		g.HourlyRate = p.HourlyRate
		g.Capacity = p.Capacity
		g.Description = p.Description
		g.Services = p.ActiveServices()
	}

	if g.Services == nil {
		g.Services = []user.Service{}
	}

	return g
}
