package types

import "github.com/google/uuid"

// NewFolderID generates a UUIDv7 folder identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewFolderID() FolderID {
	return FolderID(uuid.Must(uuid.NewV7()).String())
}

// NewRuleID generates a UUIDv7 rule identifier.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// NewGroupID generates a UUIDv7 group identifier.
func NewGroupID() GroupID {
	return GroupID(uuid.Must(uuid.NewV7()).String())
}

// NewNodeID generates a UUIDv7 hierarchy node identifier.
func NewNodeID() NodeID {
	return NodeID(uuid.Must(uuid.NewV7()).String())
}

// ParseFolderID validates and converts a string to FolderID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the system.
func ParseFolderID(s string) (FolderID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return FolderID(s), nil
}
