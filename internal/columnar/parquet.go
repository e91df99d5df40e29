// Package columnar converts award records into Parquet snapshots.
package columnar

import (
	"bytes"
	"fmt"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/JakeFAU/award-ingestor/internal/grants"
)

// ContentType is the MIME type used when uploading Parquet blobs.
const ContentType = "application/vnd.apache.parquet"

// Row is the Parquet schema for one award. Column names are the snake_case
// forms of the staging JSON keys.
type Row struct {
	AwardID              string  `parquet:"name=award_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	RecipientName        string  `parquet:"name=recipient_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	RecipientUEI         string  `parquet:"name=recipient_uei, type=BYTE_ARRAY, convertedtype=UTF8"`
	RecipientCAGE        string  `parquet:"name=recipient_cage, type=BYTE_ARRAY, convertedtype=UTF8"`
	RecipientPath        string  `parquet:"name=recipient_path, type=BYTE_ARRAY, convertedtype=UTF8"`
	ParentName           string  `parquet:"name=parent_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	ParentUEI            string  `parquet:"name=parent_uei, type=BYTE_ARRAY, convertedtype=UTF8"`
	AssistanceTypeCode   string  `parquet:"name=assistance_type_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	LatestTransactionKey string  `parquet:"name=latest_transaction_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	LastModifiedDate     string  `parquet:"name=last_modified_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	LatestActionDate     string  `parquet:"name=latest_action_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	FiscalYear           string  `parquet:"name=fiscal_year, type=BYTE_ARRAY, convertedtype=UTF8"`
	StartDate            string  `parquet:"name=start_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	EndDate              string  `parquet:"name=end_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	TotalObligatedAmount float64 `parquet:"name=total_obligated_amount, type=DOUBLE"`
	FederalObligation    float64 `parquet:"name=federal_obligation, type=DOUBLE"`
	NonFederalAmount     float64 `parquet:"name=non_federal_amount, type=DOUBLE"`
	SolicitationID       string  `parquet:"name=solicitation_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ZIP                  string  `parquet:"name=zip, type=BYTE_ARRAY, convertedtype=UTF8"`
	County               string  `parquet:"name=county, type=BYTE_ARRAY, convertedtype=UTF8"`
	City                 string  `parquet:"name=city, type=BYTE_ARRAY, convertedtype=UTF8"`
	StateCode            string  `parquet:"name=state_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	StateName            string  `parquet:"name=state_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Country              string  `parquet:"name=country, type=BYTE_ARRAY, convertedtype=UTF8"`
	Description          string  `parquet:"name=description, type=BYTE_ARRAY, convertedtype=UTF8"`
	CFDANumber           string  `parquet:"name=cfda_number, type=BYTE_ARRAY, convertedtype=UTF8"`
	ProgramTitle         string  `parquet:"name=program_title, type=BYTE_ARRAY, convertedtype=UTF8"`
	PopularProgramTitle  string  `parquet:"name=popular_program_title, type=BYTE_ARRAY, convertedtype=UTF8"`
	AwardingAgency       string  `parquet:"name=awarding_agency, type=BYTE_ARRAY, convertedtype=UTF8"`
	AwardingAgencyAbbr   string  `parquet:"name=awarding_agency_abbr, type=BYTE_ARRAY, convertedtype=UTF8"`
	FundingAgency        string  `parquet:"name=funding_agency, type=BYTE_ARRAY, convertedtype=UTF8"`
	FundingAgencyAbbr    string  `parquet:"name=funding_agency_abbr, type=BYTE_ARRAY, convertedtype=UTF8"`
	CaptureTime          string  `parquet:"name=capture_time, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// FromRecord maps a grants.Record onto the Parquet schema.
func FromRecord(r grants.Record) Row {
	return Row(r)
}

// ParquetEncoder writes records as a single-row-group Parquet file in memory.
type ParquetEncoder struct {
	// Parallelism is the number of goroutines the writer uses to marshal columns.
	Parallelism int64
}

// NewParquetEncoder returns an encoder with snappy compression.
func NewParquetEncoder() *ParquetEncoder {
	return &ParquetEncoder{Parallelism: 1}
}

// Encode returns the Parquet bytes for records.
func (e *ParquetEncoder) Encode(records []grants.Record) ([]byte, error) {
	np := e.Parallelism
	if np <= 0 {
		np = 1
	}
	var buf bytes.Buffer
	pw, err := writer.NewParquetWriterFromWriter(&buf, new(Row), np)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for i := range records {
		if err := pw.Write(FromRecord(records[i])); err != nil {
			return nil, fmt.Errorf("write parquet row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize parquet: %w", err)
	}
	return buf.Bytes(), nil
}
