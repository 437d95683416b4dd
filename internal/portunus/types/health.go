package types

import "time"

// Firmware identifies the reader IC as reported by its firmware register.
type Firmware struct {
	IC      uint8 `json:"ic"`
	Major   uint8 `json:"major"`
	Minor   uint8 `json:"minor"`
	Support uint8 `json:"support"`
}

// ReaderHealth is the cached reader status. Only the reader driver writes it;
// everyone else receives copies.
type ReaderHealth struct {
	CommunicationOK bool      `json:"communication_ok"`
	ConfiguredOK    bool      `json:"configured_ok"`
	AntennaOn       bool      `json:"antenna_on"`
	Firmware        Firmware  `json:"firmware"`
	PollCount       uint64    `json:"poll_count"`
	ReinitCount     uint64    `json:"reinit_count"`
	LastProbeAt     time.Time `json:"last_probe_at,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
}

func (h ReaderHealth) Healthy() bool {
	return h.CommunicationOK && h.ConfiguredOK
}
