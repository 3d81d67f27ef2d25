package controller

import "fmt"

// Wire command vocabulary from the amplifier protocol (spec §6). Centralised
// here so the state machine never hand-builds a command string inline.
const (
	cmdModeQuery = "MODE?"
	cmdModeVVA   = "MODE VVA"
	cmdModeALC   = "MODE ALC"
	cmdStandby   = "STANDBY"
	cmdOnline    = "ONLINE"
	cmdFwdPwr    = "FWD_PWR?"
)

// cmdVVALevel formats a VVA_LEVEL setpoint command to one decimal place.
func cmdVVALevel(level float64) string {
	return fmt.Sprintf("VVA_LEVEL %.1f", level)
}

// cmdALCLevel formats an ALC_LEVEL setpoint command to one decimal place.
func cmdALCLevel(level float64) string {
	return fmt.Sprintf("ALC_LEVEL %.1f", level)
}
