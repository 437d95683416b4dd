package types

// HeartbeatRequest matches the Portunus server's /v1/heartbeat body. The
// reader, door and counts fields are extensions the server ignores until it
// learns about them.
type HeartbeatRequest struct {
	ModuleID        string           `json:"module_id"`
	FirmwareVersion string           `json:"firmware_version,omitempty"`
	UptimeSeconds   uint64           `json:"uptime_s,omitempty"`
	DoorClosed      *bool            `json:"door_closed,omitempty"`
	RSSIDbm         *int             `json:"rssi_dbm,omitempty"`
	IP              string           `json:"ip,omitempty"`
	Sequence        uint64           `json:"seq,omitempty"`
	Reader          *ReaderHealth    `json:"reader,omitempty"`
	Counts          *PartitionCounts `json:"counts,omitempty"`
	Door            string           `json:"door,omitempty"`
}

type HeartbeatResponse struct {
	OK         bool   `json:"ok"`
	Known      bool   `json:"known"`
	ModuleID   string `json:"module_id"`
	ServerTime string `json:"server_time"`
}

// PartitionCounts are the maintained per-partition counts.
type PartitionCounts struct {
	Whitelist int `json:"whitelist"`
	Blacklist int `json:"blacklist"`
	Pending   int `json:"pending"`
}

func (c PartitionCounts) Of(p Classification) int {
	switch p {
	case Whitelist:
		return c.Whitelist
	case Blacklist:
		return c.Blacklist
	case Pending:
		return c.Pending
	default:
		return 0
	}
}

// StatusResponse is served by the local admin API.
type StatusResponse struct {
	ModuleID      string          `json:"module_id"`
	Reader        ReaderHealth    `json:"reader"`
	Door          string          `json:"door"`
	Counts        PartitionCounts `json:"counts"`
	CountsStale   bool            `json:"counts_stale,omitempty"`
	BusDropped    uint64          `json:"bus_dropped"`
	UptimeSeconds uint64          `json:"uptime_s"`
	ServerTime    string          `json:"server_time"`
}
