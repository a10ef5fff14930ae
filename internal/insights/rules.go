package insights

import (
	"fmt"

	"caneharvest/internal/types"
)

// Evaluator names, in registry order.
const (
	NameLossThreshold        = "loss_threshold"
	NameMoistureMechanical   = "moisture_mechanical"
	NameTemperatureMoisture  = "temperature_moisture"
	NameSugarQuality         = "sugar_quality"
	NameEquipmentMaintenance = "equipment_maintenance"
	NameOperatorPerformance  = "operator_performance"
)

// Fixed advisory sentences.
const (
	MsgLossAlert              = "Losses exceed the expected threshold (%s%%)."
	MsgLossRecommendation     = "Check cutter bar pressure."
	MsgLossInvalid            = "Invalid loss value: %s. Please provide a numeric value."
	MsgLossVerify             = "Verify input data for process loss."
	MsgMoistureAlert          = "High moisture level for mechanical harvesting."
	MsgMoistureRecommendation = "Consider delaying harvest or using manual harvesting."
	MsgMoistureInvalid        = "Invalid moisture value: %s. Please provide a numeric value."
	MsgMoistureVerify         = "Verify input data for moisture percentage."
	MsgSpoilageAlert          = "High temp & moisture: risk of microbial spoilage."
	MsgSpoilageRecommendation = "Process cane quickly or lower moisture prior to storage."
	MsgBrixAlert              = "Low °Brix (%s): sugar yield may be sub-optimal."
	MsgBrixRecommendation     = "Consider delaying harvest until Brix ≥ %s."
	MsgBrixInvalid            = "Invalid Brix value: %s. Please provide a numeric value."
	MsgEquipmentAlert         = "Low hourly productivity (%s t/h)."
	MsgEquipmentMaintenance   = "Schedule preventive maintenance on equipment."
	MsgEquipmentInvalid       = "Missing or invalid `productivity_per_hour` value."
	MsgEquipmentVerify        = "Verify input data for equipment productivity."
	MsgOperatorAlert          = "Operator %s exceeded loss threshold (%s%%)."
	MsgOperatorRecommendation = "Recommend operator retraining or review procedure."
)

// LossThreshold flags process losses above Threshold percent.
type LossThreshold struct {
	Threshold float64
}

func (LossThreshold) Name() string { return NameLossThreshold }

func (e LossThreshold) Evaluate(f types.Fields) (Finding, error) {
	vals, err := lookupAll(f, types.FieldLossPercentage)
	if err != nil {
		return Finding{}, err
	}
	loss, ok := types.AsNumber(vals[0])
	if !ok {
		return finding(fmt.Sprintf(MsgLossInvalid, formatValue(vals[0])), MsgLossVerify), nil
	}
	if loss > e.Threshold {
		return finding(fmt.Sprintf(MsgLossAlert, formatNumber(e.Threshold)), MsgLossRecommendation), nil
	}
	return Finding{}, nil
}

// MoistureMechanical flags wet cane cut by machine.
type MoistureMechanical struct {
	Threshold float64
}

func (MoistureMechanical) Name() string { return NameMoistureMechanical }

func (e MoistureMechanical) Evaluate(f types.Fields) (Finding, error) {
	vals, err := lookupAll(f, types.FieldMoisturePercentage, types.FieldHarvestMethod)
	if err != nil {
		return Finding{}, err
	}
	method, err := f.String(types.FieldHarvestMethod)
	if err != nil {
		return Finding{}, err
	}
	moisture, ok := types.AsNumber(vals[0])
	if !ok {
		return finding(fmt.Sprintf(MsgMoistureInvalid, formatValue(vals[0])), MsgMoistureVerify), nil
	}
	if moisture > e.Threshold && types.HarvestMethod(method) == types.HarvestMechanical {
		return finding(MsgMoistureAlert, MsgMoistureRecommendation), nil
	}
	return Finding{}, nil
}

// TemperatureMoisture flags hot and wet conditions that favour spoilage.
// Non-numeric readings are skipped without comment.
type TemperatureMoisture struct {
	TemperatureThreshold float64
	MoistureThreshold    float64
}

func (TemperatureMoisture) Name() string { return NameTemperatureMoisture }

func (e TemperatureMoisture) Evaluate(f types.Fields) (Finding, error) {
	vals, err := lookupAll(f, types.FieldAmbientTemperature, types.FieldMoisturePercentage)
	if err != nil {
		return Finding{}, err
	}
	temp, okT := types.AsNumber(vals[0])
	moisture, okM := types.AsNumber(vals[1])
	if !okT || !okM {
		return Finding{}, nil
	}
	if temp > e.TemperatureThreshold && moisture > e.MoistureThreshold {
		return finding(MsgSpoilageAlert, MsgSpoilageRecommendation), nil
	}
	return Finding{}, nil
}

// SugarQuality flags low °Brix readings.
type SugarQuality struct {
	Threshold float64
}

func (SugarQuality) Name() string { return NameSugarQuality }

func (e SugarQuality) Evaluate(f types.Fields) (Finding, error) {
	vals, err := lookupAll(f, types.FieldBrixPercentage)
	if err != nil {
		return Finding{}, err
	}
	brix, ok := types.AsNumber(vals[0])
	if !ok {
		return finding(fmt.Sprintf(MsgBrixInvalid, formatValue(vals[0])), ""), nil
	}
	if brix < e.Threshold {
		return finding(
			fmt.Sprintf(MsgBrixAlert, formatNumber(brix)),
			fmt.Sprintf(MsgBrixRecommendation, formatNumber(e.Threshold)),
		), nil
	}
	return Finding{}, nil
}

// EquipmentMaintenance flags hourly productivity below Threshold t/h.
type EquipmentMaintenance struct {
	Threshold float64
}

func (EquipmentMaintenance) Name() string { return NameEquipmentMaintenance }

func (e EquipmentMaintenance) Evaluate(f types.Fields) (Finding, error) {
	vals, err := lookupAll(f, types.FieldProductivityPerHour)
	if err != nil {
		return Finding{}, err
	}
	perHour, ok := types.AsNumber(vals[0])
	if !ok {
		return finding(MsgEquipmentInvalid, MsgEquipmentVerify), nil
	}
	if perHour < e.Threshold {
		return finding(fmt.Sprintf(MsgEquipmentAlert, formatNumber(perHour)), MsgEquipmentMaintenance), nil
	}
	return Finding{}, nil
}

// OperatorPerformance flags an operator whose loss exceeds Threshold percent.
// A non-numeric loss is skipped without comment.
type OperatorPerformance struct {
	Threshold float64
}

func (OperatorPerformance) Name() string { return NameOperatorPerformance }

func (e OperatorPerformance) Evaluate(f types.Fields) (Finding, error) {
	vals, err := lookupAll(f, types.FieldLossPercentage, types.FieldOperatorID)
	if err != nil {
		return Finding{}, err
	}
	operator, err := f.String(types.FieldOperatorID)
	if err != nil {
		return Finding{}, err
	}
	loss, ok := types.AsNumber(vals[0])
	if ok && loss > e.Threshold {
		return finding(
			fmt.Sprintf(MsgOperatorAlert, operator, formatNumber(loss)),
			MsgOperatorRecommendation,
		), nil
	}
	return Finding{}, nil
}

// NewRegistry returns the six advisory rules in their fixed order, each
// configured from th.
func NewRegistry(th types.Thresholds) []Evaluator {
	return []Evaluator{
		LossThreshold{Threshold: th.Loss},
		MoistureMechanical{Threshold: th.Moisture},
		TemperatureMoisture{TemperatureThreshold: th.Temperature, MoistureThreshold: th.MoistureForTemperature},
		SugarQuality{Threshold: th.Brix},
		EquipmentMaintenance{Threshold: th.Productivity},
		OperatorPerformance{Threshold: th.OperatorLoss},
	}
}

// DefaultRegistry is NewRegistry with the stock thresholds.
func DefaultRegistry() []Evaluator {
	return NewRegistry(types.DefaultThresholds())
}
