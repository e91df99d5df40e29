package grants

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// searchPage is the envelope returned by the grant search endpoint.
type searchPage struct {
	Results  []award         `json:"results"`
	NextPage json.RawMessage `json:"next_page"`
}

type award struct {
	AwardID              Text          `json:"award_id"`
	Awardee              *awardeeKey   `json:"awardee_key"`
	ParentAwardee        *awardeeKey   `json:"awardee_key_parent"`
	AssistanceTypeCode   Text          `json:"assistance_type_code"`
	LatestTransactionKey Text          `json:"latest_transaction_key"`
	LastModifiedDate     Text          `json:"last_modified_date"`
	LatestActionDate     Text          `json:"latest_action_date"`
	FiscalYear           Text          `json:"latest_action_date_fiscal_year"`
	StartDate            Text          `json:"period_of_performance_start_date"`
	EndDate              Text          `json:"period_of_performance_current_end_date"`
	TotalObligated       Amount        `json:"total_obligated_amount"`
	FederalObligation    Amount        `json:"federal_action_obligation"`
	NonFederalFunding    Amount        `json:"non_federal_funding_amount"`
	SolicitationID       Text          `json:"solicitation_identifier"`
	ZIP                  Text          `json:"primary_place_of_performance_zip"`
	County               Text          `json:"primary_place_of_performance_county_name"`
	City                 Text          `json:"primary_place_of_performance_city_name"`
	StateCode            Text          `json:"primary_place_of_performance_state_code"`
	StateName            Text          `json:"primary_place_of_performance_state_name"`
	Country              Text          `json:"primary_place_of_performance_country_name"`
	Description          Text          `json:"award_description_original"`
	Program              *grantProgram `json:"grant_program"`
	AwardingAgency       *agency       `json:"awarding_agency"`
	FundingAgency        *agency       `json:"funding_agency"`
}

type awardeeKey struct {
	CleanName Text `json:"clean_name"`
	UEI       Text `json:"uei"`
	CageCode  Text `json:"cage_code"`
	Path      Text `json:"path"`
}

type grantProgram struct {
	CFDANumber   Text `json:"cfda_program_number"`
	Title        Text `json:"program_title"`
	PopularTitle Text `json:"popular_program_title"`
}

type agency struct {
	Name         Text `json:"agency_name"`
	Abbreviation Text `json:"agency_abbreviation"`
}

// normalize flattens an award. Absent nested objects yield empty fields.
func (a award) normalize() Record {
	var (
		awardee  = deref(a.Awardee)
		parent   = deref(a.ParentAwardee)
		program  = deref(a.Program)
		awarding = deref(a.AwardingAgency)
		funding  = deref(a.FundingAgency)
	)
	return Record{
		AwardID:              string(a.AwardID),
		RecipientName:        string(awardee.CleanName),
		RecipientUEI:         string(awardee.UEI),
		RecipientCAGE:        string(awardee.CageCode),
		RecipientPath:        string(awardee.Path),
		ParentName:           string(parent.CleanName),
		ParentUEI:            string(parent.UEI),
		AssistanceTypeCode:   string(a.AssistanceTypeCode),
		LatestTransactionKey: string(a.LatestTransactionKey),
		LastModifiedDate:     string(a.LastModifiedDate),
		LatestActionDate:     string(a.LatestActionDate),
		FiscalYear:           string(a.FiscalYear),
		StartDate:            string(a.StartDate),
		EndDate:              string(a.EndDate),
		TotalObligatedAmount: float64(a.TotalObligated),
		FederalObligation:    float64(a.FederalObligation),
		NonFederalAmount:     float64(a.NonFederalFunding),
		SolicitationID:       string(a.SolicitationID),
		ZIP:                  string(a.ZIP),
		County:               string(a.County),
		City:                 string(a.City),
		StateCode:            string(a.StateCode),
		StateName:            string(a.StateName),
		Country:              string(a.Country),
		Description:          string(a.Description),
		CFDANumber:           string(program.CFDANumber),
		ProgramTitle:         string(program.Title),
		PopularProgramTitle:  string(program.PopularTitle),
		AwardingAgency:       string(awarding.Name),
		AwardingAgencyAbbr:   string(awarding.Abbreviation),
		FundingAgency:        string(funding.Name),
		FundingAgencyAbbr:    string(funding.Abbreviation),
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Text decodes any JSON scalar into its string form. null becomes "".
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*t = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err //nolint:wrapcheck
		}
		*t = Text(s)
	default:
		*t = Text(b)
	}
	return nil
}

// Amount decodes a JSON number or numeric string. null, "" and unparseable
// strings become zero.
type Amount float64

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err //nolint:wrapcheck
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*a = 0
			return nil
		}
		*a = Amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err //nolint:wrapcheck
	}
	*a = Amount(f)
	return nil
}

// hasNextPage reports whether next_page carries a truthy value.
func hasNextPage(raw json.RawMessage) bool {
	v := strings.TrimSpace(string(raw))
	switch v {
	case "", "null", "false", `""`, "0", "[]", "{}":
		return false
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f != 0
	}
	return true
}
