package external

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/clinical-trial-matcher/internal/domain"
)

// Registry query parameter values
const (
	DefaultRegistryBaseURL = "https://clinicaltrials.gov/api/v2"
	DefaultPageSize        = 15
	RecruitingStatuses     = "RECRUITING,NOT_YET_RECRUITING"
	MaxDisplayLocations    = 3
	studiesPath            = "/studies"
)

// StudyQuery is one registry search for a single derived term.
type StudyQuery struct {
	Term     string
	PageSize int
	// Geo narrows the search around a point when set.
	Geo *GeoFilter
}

// GeoFilter is the registry distance filter.
type GeoFilter struct {
	Lat    float64
	Lon    float64
	Radius string
}

// String renders the filter in the registry's distance(lat,lon,radius) syntax.
func (g GeoFilter) String() string {
	return fmt.Sprintf("distance(%s,%s,%s)",
		strconv.FormatFloat(g.Lat, 'f', 6, 64),
		strconv.FormatFloat(g.Lon, 'f', 6, 64),
		g.Radius)
}

// CacheKey identifies the query for response caching.
func (q StudyQuery) CacheKey() string {
	key := fmt.Sprintf("studies|%s|%d", strings.ToLower(q.Term), q.PageSize)
	if q.Geo != nil {
		key += "|" + q.Geo.String()
	}
	return key
}

// StudiesResponse is the registry search response.
type StudiesResponse struct {
	Studies       []Study `json:"studies"`
	TotalCount    int     `json:"totalCount"`
	NextPageToken string  `json:"nextPageToken"`
}

// Study is one registry record.
type Study struct {
	ProtocolSection ProtocolSection `json:"protocolSection"`
}

// ProtocolSection holds the modules mapped onto a Trial.
type ProtocolSection struct {
	IdentificationModule struct {
		NCTID         string `json:"nctId"`
		BriefTitle    string `json:"briefTitle"`
		OfficialTitle string `json:"officialTitle"`
	} `json:"identificationModule"`
	StatusModule struct {
		OverallStatus            string `json:"overallStatus"`
		LastUpdatePostDateStruct struct {
			Date string `json:"date"`
		} `json:"lastUpdatePostDateStruct"`
	} `json:"statusModule"`
	DesignModule struct {
		Phases []string `json:"phases"`
	} `json:"designModule"`
	SponsorCollaboratorsModule struct {
		LeadSponsor struct {
			Name string `json:"name"`
		} `json:"leadSponsor"`
	} `json:"sponsorCollaboratorsModule"`
	ConditionsModule struct {
		Conditions []string `json:"conditions"`
	} `json:"conditionsModule"`
	ContactsLocationsModule struct {
		CentralContacts []struct {
			Name  string `json:"name"`
			Phone string `json:"phone"`
			Email string `json:"email"`
		} `json:"centralContacts"`
		Locations []struct {
			Facility string `json:"facility"`
			City     string `json:"city"`
			State    string `json:"state"`
			Country  string `json:"country"`
		} `json:"locations"`
	} `json:"contactsLocationsModule"`
	EligibilityModule struct {
		EligibilityCriteria string `json:"eligibilityCriteria"`
		MinimumAge          string `json:"minimumAge"`
		MaximumAge          string `json:"maximumAge"`
	} `json:"eligibilityModule"`
}

// ClinicalTrialsClient queries the ClinicalTrials.gov v2 studies endpoint.
type ClinicalTrialsClient struct {
	http   *resty.Client
	logger *logrus.Logger
}

// NewClinicalTrialsClient creates a registry client.
func NewClinicalTrialsClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *ClinicalTrialsClient {
	if baseURL == "" {
		baseURL = DefaultRegistryBaseURL
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "clinical-trial-matcher/1.0")

	return &ClinicalTrialsClient{http: client, logger: logger}
}

// QueryStudies issues one search and maps every study to a Trial tagged with
// the query term. Transport failures and non-2xx statuses are reported as errors.
func (c *ClinicalTrialsClient) QueryStudies(ctx context.Context, q StudyQuery) ([]domain.Trial, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	params := map[string]string{
		"format":               "json",
		"pageSize":             strconv.Itoa(pageSize),
		"countTotal":           "true",
		"query.cond":           q.Term,
		"filter.overallStatus": RecruitingStatuses,
	}
	if q.Geo != nil {
		params["filter.geo"] = q.Geo.String()
	}

	var body StudiesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&body).
		Get(studiesPath)
	if err != nil {
		return nil, fmt.Errorf("registry request for %q failed: %w", q.Term, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("registry returned status %d for %q", resp.StatusCode(), q.Term)
	}

	trials := make([]domain.Trial, 0, len(body.Studies))
	for _, s := range body.Studies {
		trial := s.ToTrial(q.Term)
		if trial.NCTID == "" {
			continue
		}
		trials = append(trials, trial)
	}

	c.logger.WithFields(logrus.Fields{
		"term":        q.Term,
		"geo":         q.Geo != nil,
		"studies":     len(trials),
		"total_count": body.TotalCount,
	}).Debug("Registry query completed")
	return trials, nil
}

// ToTrial maps the nested registry record onto the canonical Trial shape.
func (s Study) ToTrial(term string) domain.Trial {
	p := s.ProtocolSection
	title := p.IdentificationModule.BriefTitle
	if title == "" {
		title = p.IdentificationModule.OfficialTitle
	}
	phase := strings.Join(p.DesignModule.Phases, ", ")
	if phase == "" {
		phase = "N/A"
	}

	locations := make([]string, 0, MaxDisplayLocations)
	for _, loc := range p.ContactsLocationsModule.Locations {
		if len(locations) == MaxDisplayLocations {
			break
		}
		locations = append(locations, joinNonEmpty(", ", loc.Facility, loc.City, loc.State))
	}

	var contact string
	if cs := p.ContactsLocationsModule.CentralContacts; len(cs) > 0 {
		contact = joinNonEmpty(" - ", cs[0].Name, cs[0].Phone, cs[0].Email)
	}

	return domain.Trial{
		NCTID:          p.IdentificationModule.NCTID,
		Title:          title,
		Status:         p.StatusModule.OverallStatus,
		Phase:          phase,
		Sponsor:        p.SponsorCollaboratorsModule.LeadSponsor.Name,
		Condition:      strings.Join(p.ConditionsModule.Conditions, ", "),
		Locations:      locations,
		Contact:        contact,
		Eligibility:    p.EligibilityModule.EligibilityCriteria,
		LastUpdated:    p.StatusModule.LastUpdatePostDateStruct.Date,
		SearchTermUsed: term,
		DataSource:     domain.RegistryDataSource,
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
