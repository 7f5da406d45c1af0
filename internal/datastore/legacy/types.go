package legacy

import (
	"time"

	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
)

// SupportedVersions are the Z_METADATA.Z_VERSION values this reader decodes.
var SupportedVersions = []int{1, 2, 3}

// referenceDate is the epoch legacy timestamps count from.
var referenceDate = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// EntityCounts holds source row counts per kind.
type EntityCounts struct {
	Homes        int `yaml:"homes"`
	Locations    int `yaml:"locations"`
	Items        int `yaml:"items"`
	Labels       int `yaml:"labels"`
	Policies     int `yaml:"policies"`
	ItemLabels   int `yaml:"item_labels"`
	HomePolicies int `yaml:"home_policies"`
}

// PhotoRefs are the photo file paths attached to a legacy entity.
type PhotoRefs struct {
	Primary   string
	Secondary []string
	// SecondaryError is set when the secondary list could not be decoded and
	// was dropped.
	SecondaryError string
}

// PhotoPath is a photo file path with its target sort order.
type PhotoPath struct {
	SortOrder int
	Path      string
}

// Paths returns the non-empty paths with their sort order: the primary photo
// is 0 and secondary i is i+1. Positions of empty entries are left as gaps.
func (p PhotoRefs) Paths() []PhotoPath {
	var out []PhotoPath
	if p.Primary != "" {
		out = append(out, PhotoPath{SortOrder: 0, Path: p.Primary})
	}
	for i, s := range p.Secondary {
		if s != "" {
			out = append(out, PhotoPath{SortOrder: i + 1, Path: s})
		}
	}
	return out
}

// Home is a decoded ZHOME row.
type Home struct {
	PK        int64
	Name      string
	Address1  string
	City      string
	IsPrimary bool
	CreatedAt time.Time
	Photos    PhotoRefs
}

// Location is a decoded ZLOCATION row.
type Location struct {
	PK          int64
	Name        string
	Description string
	HomePK      *int64
	Photos      PhotoRefs
}

// Label is a decoded ZLABEL row.
type Label struct {
	PK       int64
	Name     string
	ColorHex string
	Emoji    string
}

// Item is a decoded ZITEM row. HomePK is always nil for version 1 stores.
type Item struct {
	PK         int64
	Title      string
	Quantity   int
	Price      float64
	Notes      string
	LocationPK *int64
	HomePK     *int64
	CreatedAt  time.Time
	Photos     PhotoRefs
}

// Policy is a decoded ZPOLICY row.
type Policy struct {
	PK           int64
	Provider     string
	PolicyNumber string
	Deductible   float64
	Start        *time.Time
	End          *time.Time
}

// ItemLabel is a Z_ITEMLABELS join row.
type ItemLabel struct {
	ItemPK  int64
	LabelPK int64
}

// HomePolicy is a Z_HOMEPOLICIES join row.
type HomePolicy struct {
	HomePK   int64
	PolicyPK int64
}

// ByKind returns the count for an entity kind.
func (c EntityCounts) ByKind(kind string) int {
	switch kind {
	case entities.KindHome:
		return c.Homes
	case entities.KindLocation:
		return c.Locations
	case entities.KindItem:
		return c.Items
	case entities.KindLabel:
		return c.Labels
	case entities.KindPolicy:
		return c.Policies
	case entities.KindItemLabel:
		return c.ItemLabels
	case entities.KindHomePolicy:
		return c.HomePolicies
	default:
		return 0
	}
}
