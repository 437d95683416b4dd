package types

import (
	"fmt"
	"strings"
)

// Classification is the partition a UID currently belongs to. Unclassified
// means the UID is absent from every partition.
type Classification uint8

const (
	Unclassified Classification = iota
	Whitelist
	Blacklist
	Pending
)

// Partitions lists the three stored partitions in lookup order.
var Partitions = [...]Classification{Whitelist, Blacklist, Pending}

func (c Classification) String() string {
	switch c {
	case Unclassified:
		return "none"
	case Whitelist:
		return "whitelist"
	case Blacklist:
		return "blacklist"
	case Pending:
		return "pending"
	default:
		return fmt.Sprintf("classification(%d)", uint8(c))
	}
}

// IsPartition reports whether c names a stored partition.
func (c Classification) IsPartition() bool {
	return c == Whitelist || c == Blacklist || c == Pending
}

// ParsePartition accepts "whitelist", "blacklist" or "pending" in any case.
func ParsePartition(s string) (Classification, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "whitelist":
		return Whitelist, nil
	case "blacklist":
		return Blacklist, nil
	case "pending", "pending_seen":
		return Pending, nil
	default:
		return Unclassified, fmt.Errorf("unknown partition %q", s)
	}
}
