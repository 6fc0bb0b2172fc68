package source

import (
	"context"

	"bdr-engine/internal/domain"
)

// Demo serves a fixed batch without touching the network, so the whole
// pipeline can be exercised before any credentials exist. The records spread
// across the scoring spectrum on purpose, including one that scoring skips.
type Demo struct{}

func (Demo) Name() string { return "demo" }

func (Demo) Fetch(_ context.Context, max int) ([]domain.Prospect, error) {
	batch := []domain.Prospect{
		{
			FirstName: "John", LastName: "Smith",
			Email: "john.smith@techcorp.example", Title: "CTO",
			Company: "TechCorp", CompanyDomain: "techcorp.example",
			CompanySize: 150, Industry: "Technology", Region: "North America",
			Location: "San Francisco, United States", LinkedInURL: "https://linkedin.com/in/johnsmith",
		},
		{
			FirstName: "Sarah", LastName: "Johnson",
			Email: "sarah.johnson@innovate.example", Title: "VP of Engineering",
			Company: "Innovate Solutions", CompanyDomain: "innovate.example",
			CompanySize: 80, Industry: "Software", Region: "North America",
			Location: "New York, United States", LinkedInURL: "https://linkedin.com/in/sarahjohnson",
		},
		{
			FirstName: "Elena", LastName: "Fischer",
			Email: "elena.fischer@secureplane.example", Title: "Head of Security",
			Company: "SecurePlane", CompanyDomain: "secureplane.example",
			CompanySize: 220, Industry: "Cybersecurity", Region: "Europe",
			Location: "Berlin, Germany",
		},
		{
			FirstName: "Marcus", LastName: "Webb",
			Email: "marcus.webb@ledgerly.example", Title: "Chief Technology Officer",
			Company: "Ledgerly", CompanyDomain: "ledgerly.example",
			CompanySize: 420, Industry: "Fintech", Region: "Europe",
			Location: "London, United Kingdom",
		},
		{
			FirstName: "Priya", LastName: "Nair",
			Email: "priya.nair@shopstack.example", Title: "CTO",
			Company: "ShopStack", CompanyDomain: "shopstack.example",
			CompanySize: 25, Industry: "Retail", Region: "Asia",
			Location: "Bangalore, India",
		},
		{
			// no industry on file; scoring skips this one and says so
			FirstName: "Tom", LastName: "Okafor",
			Email: "tom.okafor@blankslate.example", Title: "VP of Engineering",
			Company: "BlankSlate", CompanySize: 140, Region: "North America",
			Location: "Toronto, Canada",
		},
	}
	if max > 0 && len(batch) > max {
		batch = batch[:max]
	}
	return batch, nil
}
