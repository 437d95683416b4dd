package types

// CommandType names an operation issued by the cloud or a local operator.
type CommandType string

const (
	CmdRemoteUnlock CommandType = "REMOTE_UNLOCK"
	CmdGetPending   CommandType = "GET_PENDING"
	CmdGetDebug     CommandType = "GET_DEBUG"
	CmdWhitelistAdd CommandType = "WHITELIST_ADD"
	CmdBlacklistAdd CommandType = "BLACKLIST_ADD"
	CmdRemoveUID    CommandType = "REMOVE_UID"
	CmdSyncUIDs     CommandType = "SYNC_UIDS"
	CmdClear        CommandType = "CLEAR"
	CmdFactoryReset CommandType = "FACTORY_RESET"
)

type CommandRequest struct {
	ID        string       `json:"id"`
	Type      CommandType  `json:"type"`
	UID       string       `json:"uid,omitempty"`
	Partition string       `json:"partition,omitempty"` // CLEAR only
	Payload   *SyncPayload `json:"payload,omitempty"`   // SYNC_UIDS only
	Source    string       `json:"source,omitempty"`
}

// SyncPayload replaces the whitelist and blacklist wholesale.
type SyncPayload struct {
	Whitelist []string `json:"whitelist"`
	Blacklist []string `json:"blacklist"`
}

type CommandResponse struct {
	OK         bool     `json:"ok"`
	CommandID  string   `json:"command_id"`
	Result     string   `json:"result"`
	Pending    []string `json:"pending,omitempty"`
	ModuleID   string   `json:"module_id"`
	ServerTime string   `json:"server_time"`
}

// LogRecord is the wire form of an access log entry.
type LogRecord struct {
	ID   string  `json:"id"`
	At   string  `json:"at"`
	Kind LogKind `json:"kind"`
	UID  string  `json:"uid"`
	Info string  `json:"info,omitempty"`
}
