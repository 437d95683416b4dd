package types

// LogKind is the event kind column of the access log.
type LogKind string

const (
	LogRFIDGranted     LogKind = "RFID_GRANTED"
	LogRFIDDenied      LogKind = "RFID_DENIED"
	LogRFIDPending     LogKind = "RFID_PENDING"
	LogRFIDInvalid     LogKind = "RFID_INVALID"
	LogExitUnlock      LogKind = "EXIT_UNLOCK"
	LogRemoteUnlock    LogKind = "REMOTE_UNLOCK"
	LogSystemBoot      LogKind = "SYSTEM_BOOT"
	LogUIDWhitelisted  LogKind = "UID_WHITELISTED"
	LogUIDBlacklisted  LogKind = "UID_BLACKLISTED"
	LogUIDRemoved      LogKind = "UID_REMOVED"
	LogUIDSync         LogKind = "UID_SYNC"
	LogCommandError    LogKind = "COMMAND_ERROR"
	LogReaderReinit    LogKind = "READER_REINIT"
	LogActuationFailed LogKind = "ACTUATION_FAILED"
)
