package types

import "time"

// SortOrder controls the direction of collection sorting.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// FolderSettings controls refresh, caching and result shaping for a folder.
type FolderSettings struct {
	AutoRefreshInterval int       `json:"autoRefreshInterval,omitempty" yaml:"autoRefreshInterval,omitempty"` // seconds, 0 disables
	CacheResults        bool      `json:"cacheResults" yaml:"cacheResults"`
	CacheDuration       int       `json:"cacheDuration,omitempty" yaml:"cacheDuration,omitempty"` // minutes
	MaxDocuments        int       `json:"maxDocuments,omitempty" yaml:"maxDocuments,omitempty"`   // 0 = unbounded
	SortBy              string    `json:"sortBy,omitempty" yaml:"sortBy,omitempty"`
	SortOrder           SortOrder `json:"sortOrder,omitempty" yaml:"sortOrder,omitempty"`
}

// DefaultFolderSettings returns settings applied to folders created without any.
func DefaultFolderSettings() FolderSettings {
	return FolderSettings{
		CacheResults:  true,
		CacheDuration: 5,
		MaxDocuments:  1000,
		SortOrder:     SortDesc,
	}
}

// CacheTTL converts CacheDuration to a duration.
func (s FolderSettings) CacheTTL() time.Duration {
	return time.Duration(s.CacheDuration) * time.Minute
}

// RefreshEvery converts AutoRefreshInterval to a duration (0 when disabled).
func (s FolderSettings) RefreshEvery() time.Duration {
	if s.AutoRefreshInterval <= 0 {
		return 0
	}
	return time.Duration(s.AutoRefreshInterval) * time.Second
}

// SmartFolder is a virtual folder whose membership is computed from RuleSet.
// Generation increases on every change to RuleSet or Settings.
type SmartFolder struct {
	ID          FolderID       `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	RuleSet     RuleGroup      `json:"ruleSet" yaml:"ruleSet"`
	IsActive    bool           `json:"isActive" yaml:"isActive"`
	Settings    FolderSettings `json:"settings" yaml:"settings"`
	Generation  int64          `json:"generation" yaml:"generation"`
	CreatedAt   time.Time      `json:"createdAt" yaml:"createdAt,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt" yaml:"updatedAt,omitempty"`
}

// HierarchyNode is a node of the folder tree shown to users.
// It references at most one smart folder by id.
type HierarchyNode struct {
	ID            NodeID    `json:"id" db:"node_id"`
	ParentID      *NodeID   `json:"parentId,omitempty" db:"parent_id"`
	Name          string    `json:"name" db:"name"`
	SmartFolderID *FolderID `json:"smartFolderId,omitempty" db:"smart_folder_id"`
}

// Query shapes a collection evaluation. Zero fields fall back to folder settings.
type Query struct {
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
	SortBy    string    `json:"sortBy,omitempty"`
	SortOrder SortOrder `json:"sortOrder,omitempty"`
}

// Resolve fills unset query fields from settings and caps Limit at MaxDocuments.
func (q Query) Resolve(s FolderSettings) Query {
	if q.SortBy == "" {
		q.SortBy = s.SortBy
	}
	if q.SortOrder == "" {
		q.SortOrder = s.SortOrder
	}
	if q.SortOrder == "" {
		q.SortOrder = SortAsc
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Limit <= 0 || (s.MaxDocuments > 0 && q.Limit > s.MaxDocuments) {
		q.Limit = s.MaxDocuments
	}
	return q
}
