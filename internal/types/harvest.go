package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Flat field names shared by the input schema, the derived metrics, the
// advisory, the JSON history log, and the relational columns.
const (
	FieldArea                   = "area"
	FieldProduction             = "production"
	FieldLossPercentage         = "loss_percentage"
	FieldDurationHours          = "duration_hours"
	FieldHarvestMethod          = "harvest_method"
	FieldMoisturePercentage     = "moisture_percentage"
	FieldHarvestDate            = "harvest_date"
	FieldOperatorID             = "operator_id"
	FieldEquipmentID            = "equipment_id"
	FieldVariety                = "variety"
	FieldAmbientTemperature     = "ambient_temperature"
	FieldBrixPercentage         = "brix_percentage"
	FieldLostTonnage            = "lost_tonnage"
	FieldNetProduction          = "net_production"
	FieldProductivityPerHour    = "productivity_per_hour"
	FieldProductivityPerHectare = "productivity_per_hectare"
	FieldAlert                  = "alert"
	FieldRecommendation         = "recommendation"
)

// HarvestMethod is how the cane was cut.
type HarvestMethod string

const (
	HarvestManual     HarvestMethod = "manual"
	HarvestMechanical HarvestMethod = "mechanical"
)

// DateLayout is the wire format of harvest dates.
const DateLayout = "2006-01-02"

// Date is a calendar date without a time-of-day component. The zero value
// marshals as JSON null.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in t's own location.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Date{Time: t}, nil
}

// String returns the YYYY-MM-DD form, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return NewAppError(ErrCodeValidationFailed, "date must be a YYYY-MM-DD string", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return NewAppError(ErrCodeValidationFailed, err.Error(), err)
	}
	*d = parsed
	return nil
}

// HarvestRecord is one observed cane-harvesting event after schema validation.
type HarvestRecord struct {
	Area               float64       `json:"area"`
	Production         float64       `json:"production"`
	LossPercentage     float64       `json:"loss_percentage"`
	DurationHours      float64       `json:"duration_hours"`
	HarvestMethod      HarvestMethod `json:"harvest_method"`
	MoisturePercentage float64       `json:"moisture_percentage"`
	HarvestDate        Date          `json:"harvest_date"`
	OperatorID         string        `json:"operator_id"`
	EquipmentID        string        `json:"equipment_id"`
	Variety            string        `json:"variety"`
	AmbientTemperature float64       `json:"ambient_temperature"`
	BrixPercentage     float64       `json:"brix_percentage"`
}

// Fields returns the record as a flat mapping.
func (r HarvestRecord) Fields() Fields {
	return Fields{
		FieldArea:               r.Area,
		FieldProduction:         r.Production,
		FieldLossPercentage:     r.LossPercentage,
		FieldDurationHours:      r.DurationHours,
		FieldHarvestMethod:      string(r.HarvestMethod),
		FieldMoisturePercentage: r.MoisturePercentage,
		FieldHarvestDate:        r.HarvestDate.String(),
		FieldOperatorID:         r.OperatorID,
		FieldEquipmentID:        r.EquipmentID,
		FieldVariety:            r.Variety,
		FieldAmbientTemperature: r.AmbientTemperature,
		FieldBrixPercentage:     r.BrixPercentage,
	}
}

// DerivedMetrics are the four efficiency figures computed from a record.
type DerivedMetrics struct {
	LostTonnage            float64 `json:"lost_tonnage"`
	NetProduction          float64 `json:"net_production"`
	ProductivityPerHour    float64 `json:"productivity_per_hour"`
	ProductivityPerHectare float64 `json:"productivity_per_hectare"`
}

// Fields returns the metrics as a flat mapping.
func (m DerivedMetrics) Fields() Fields {
	return Fields{
		FieldLostTonnage:            m.LostTonnage,
		FieldNetProduction:          m.NetProduction,
		FieldProductivityPerHour:    m.ProductivityPerHour,
		FieldProductivityPerHectare: m.ProductivityPerHectare,
	}
}

// Advisory is the alert/recommendation text pair produced by rule evaluation.
// Either string may be empty.
type Advisory struct {
	Alert          string `json:"alert"`
	Recommendation string `json:"recommendation"`
}

// Harvest is the fully enriched record handed to persistence. It is built
// once per request and never mutated afterwards. Its JSON form is flat.
type Harvest struct {
	ID string `json:"id"`
	HarvestRecord
	DerivedMetrics
	Advisory
	CreatedAt time.Time `json:"created_at"`
}

// StoredHarvest is a row read back from the harvest table.
type StoredHarvest struct {
	ID                     string    `json:"id"`
	Area                   float64   `json:"area"`
	Production             float64   `json:"production"`
	LossPercentage         float64   `json:"loss_percentage"`
	LostTonnage            float64   `json:"lost_tonnage"`
	NetProduction          float64   `json:"net_production"`
	ProductivityPerHour    float64   `json:"productivity_per_hour"`
	ProductivityPerHectare float64   `json:"productivity_per_hectare"`
	Alert                  string    `json:"alert"`
	Recommendation         string    `json:"recommendation"`
	CreatedAt              time.Time `json:"created_at"`
}

// Thresholds holds the numeric cutoffs of the advisory rules. Each value is
// used by exactly one rule's trigger condition.
type Thresholds struct {
	Loss                   float64 `envconfig:"LOSS_THRESHOLD" default:"10.0" yaml:"loss" json:"loss"`
	Moisture               float64 `envconfig:"MOIST_THRESHOLD" default:"20.0" yaml:"moisture" json:"moisture"`
	Temperature            float64 `envconfig:"TEMP_THRESHOLD" default:"35.0" yaml:"temperature" json:"temperature"`
	MoistureForTemperature float64 `envconfig:"MOIST_THRESHOLD_FOR_TEMP" default:"20.0" yaml:"moisture_for_temperature" json:"moisture_for_temperature"`
	Brix                   float64 `envconfig:"BRIX_THRESHOLD" default:"12.0" yaml:"brix" json:"brix"`
	Productivity           float64 `envconfig:"PRODUCTIVITY_THRESHOLD" default:"200.0" yaml:"productivity" json:"productivity"`
	OperatorLoss           float64 `envconfig:"LOSS_THRESHOLD_FOR_OPERATOR" default:"15.0" yaml:"operator_loss" json:"operator_loss"`
}

// DefaultThresholds returns the stock cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Loss:                   10.0,
		Moisture:               20.0,
		Temperature:            35.0,
		MoistureForTemperature: 20.0,
		Brix:                   12.0,
		Productivity:           200.0,
		OperatorLoss:           15.0,
	}
}
