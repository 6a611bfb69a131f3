package types

import (
	"time"
)

// Market identifies the listing venue of a security.
type Market string

const (
	MarketAShare   Market = "szse"
	MarketHongKong Market = "hke"
	MarketUS       Market = "us"
)

// Column returns the registry column parameter for the market.
func (m Market) Column() string {
	if m == MarketHongKong {
		return "hke"
	}
	return "szse"
}

func (m Market) String() string {
	switch m {
	case MarketAShare:
		return "A-share"
	case MarketHongKong:
		return "Hong Kong"
	case MarketUS:
		return "US"
	}
	return string(m)
}

type StockRecord struct {
	Code        string
	DisplayName string
	PhoneticKey string
	OrgID       string
	Market      Market
}

// ReportKind is a periodic (non-annual) report type.
type ReportKind string

const (
	KindQ1   ReportKind = "q1"
	KindSemi ReportKind = "semi"
	KindQ3   ReportKind = "q3"
)

type FilingFilter struct {
	TargetCode   string
	CategoryTags []string
	SearchTerm   string
	Start        time.Time
	End          time.Time
}

// DateRange renders the filter window as "start~end".
func (f FilingFilter) DateRange() string {
	if f.Start.IsZero() && f.End.IsZero() {
		return ""
	}
	return f.Start.Format("2006-01-02") + "~" + f.End.Format("2006-01-02")
}

type DocumentType string

const (
	DocumentPDF  DocumentType = "PDF"
	DocumentHTML DocumentType = "HTML"
)

type Announcement struct {
	SecurityCode   string
	SecurityName   string
	Title          string
	DocumentURL    string
	AnnouncementID string
	DocumentType   DocumentType
	PublishedAt    time.Time
}

type RetrievalTask struct {
	Announcement Announcement
	Destination  string
}

type ReportSet struct {
	Stock        StockRecord
	OutputDir    string
	Annual       []string
	Periodic     []string
	Recent       []string
	RecentDigest string
	Files        []string
}
