package domain

import "fmt"

// AuxControlRequest

type AuxControlRequest interface {
	ActorRequest
	AuxControlCommand() string
}

type AuxControlRequestMixIn struct {
	ActorRequestMixIn
}

func (r AuxControlRequestMixIn) AuxControlCommand() string {
	return fmt.Sprintf("%T", r)
}

// AuxControl commands

type AuxAutoChargeRequest struct {
	AuxControlRequestMixIn
	Enable bool
}

type AuxAutoDischargeRequest struct {
	AuxControlRequestMixIn
	Enable bool
}

type AuxLimitNearFullRequest struct {
	AuxControlRequestMixIn
	Enable bool
}

type AuxMinDischargeSoCRequest struct {
	AuxControlRequestMixIn
	SoC float64
}

// AuxCellVoltageUpdate carries the max cell voltage of the aux battery in V.
type AuxCellVoltageUpdate struct {
	AuxControlRequestMixIn
	Volts float64
}

// ensure interface compliance
var _ AuxControlRequest = (*AuxAutoChargeRequest)(nil)
var _ AuxControlRequest = (*AuxCellVoltageUpdate)(nil)
