package amazon

import (
	"encoding/json"
	"time"
)

// Token is the result of a successful token grant. RefreshToken is empty
// when the provider did not issue a new one.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Profile is an advertiser profile as listed by GET /v2/profiles.
type Profile struct {
	ProfileID   string
	CountryCode string
	AccountName string
	AccountInfo AccountInfo
}

type AccountInfo struct {
	Name string
	Type string
}

// Campaign is a campaign as listed by GET /v2/campaigns.
type Campaign struct {
	CampaignID    string
	Name          string
	CampaignType  string
	TargetingType string
	DailyBudget   float64
	StartDate     string
	State         string
}

// --- Advertising API response types ---

type profileJSON struct {
	ProfileID   json.Number `json:"profileId"`
	CountryCode string      `json:"countryCode"`
	AccountName string      `json:"accountName"`
	AccountInfo struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"accountInfo"`
}

func (p profileJSON) toProfile() Profile {
	return Profile{
		ProfileID:   p.ProfileID.String(),
		CountryCode: p.CountryCode,
		AccountName: p.AccountName,
		AccountInfo: AccountInfo{Name: p.AccountInfo.Name, Type: p.AccountInfo.Type},
	}
}

type campaignJSON struct {
	CampaignID    json.Number `json:"campaignId"`
	Name          string      `json:"name"`
	CampaignType  string      `json:"campaignType"`
	TargetingType string      `json:"targetingType"`
	DailyBudget   float64     `json:"dailyBudget"`
	StartDate     string      `json:"startDate"`
	State         string      `json:"state"`
}

func (c campaignJSON) toCampaign() Campaign {
	return Campaign{
		CampaignID:    c.CampaignID.String(),
		Name:          c.Name,
		CampaignType:  c.CampaignType,
		TargetingType: c.TargetingType,
		DailyBudget:   c.DailyBudget,
		StartDate:     c.StartDate,
		State:         c.State,
	}
}
