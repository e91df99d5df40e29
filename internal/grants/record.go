// Package grants fetches award records from the HigherGov grant search API and
// flattens them into the Record schema persisted by the ingestion pipeline.
package grants

// Record is one flattened award. JSON keys are the display names written to the
// staging snapshots.
type Record struct {
	AwardID              string  `json:"Award ID"`
	RecipientName        string  `json:"Recipient Name"`
	RecipientUEI         string  `json:"Recipient UEI"`
	RecipientCAGE        string  `json:"Recipient CAGE"`
	RecipientPath        string  `json:"Recipient Path"`
	ParentName           string  `json:"Parent Name"`
	ParentUEI            string  `json:"Parent UEI"`
	AssistanceTypeCode   string  `json:"Assistance Type Code"`
	LatestTransactionKey string  `json:"Latest Transaction Key"`
	LastModifiedDate     string  `json:"Last Modified Date"`
	LatestActionDate     string  `json:"Latest Action Date"`
	FiscalYear           string  `json:"Fiscal Year"`
	StartDate            string  `json:"Start Date"`
	EndDate              string  `json:"End Date"`
	TotalObligatedAmount float64 `json:"Total Obligated Amount"`
	FederalObligation    float64 `json:"Federal Obligation"`
	NonFederalAmount     float64 `json:"Non-Federal Amount"`
	SolicitationID       string  `json:"Solicitation ID"`
	ZIP                  string  `json:"ZIP"`
	County               string  `json:"County"`
	City                 string  `json:"City"`
	StateCode            string  `json:"State Code"`
	StateName            string  `json:"State Name"`
	Country              string  `json:"Country"`
	Description          string  `json:"Description"`
	CFDANumber           string  `json:"CFDA Number"`
	ProgramTitle         string  `json:"Program Title"`
	PopularProgramTitle  string  `json:"Popular Program Title"`
	AwardingAgency       string  `json:"Awarding Agency"`
	AwardingAgencyAbbr   string  `json:"Awarding Agency Abbr."`
	FundingAgency        string  `json:"Funding Agency"`
	FundingAgencyAbbr    string  `json:"Funding Agency Abbr."`
	CaptureTime          string  `json:"Capture Time"`
}

// Stamp sets the capture time on every record in place.
func Stamp(records []Record, captureTime string) {
	for i := range records {
		records[i].CaptureTime = captureTime
	}
}
